package poolapi

import (
	"embed"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

//go:embed dist/*
var embeddedDashboard embed.FS

func getDashboardFS() static.ServeFileSystem {
	fs, err := static.EmbedFolder(embeddedDashboard, "dist")
	if err != nil {
		panic("poolapi: failed to load embedded dashboard: " + err.Error())
	}
	return fs
}

// mountDashboard serves a minimal static landing page linking to the
// swagger UI and the JSON endpoints, at every path not under /api or
// /swagger. There is no build step: dist/ is checked in directly since
// the dashboard has no client-side framework.
func mountDashboard(r *gin.Engine, logger *slog.Logger) {
	distFS := getDashboardFS()
	r.Use(static.Serve("/", distFS))

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.RequestURI, "/api") || strings.HasPrefix(c.Request.RequestURI, "/swagger") {
			return
		}
		index, err := distFS.Open("index.html")
		if err != nil {
			logger.Error("failed to open dashboard index.html", "error", err)
			c.Status(http.StatusNotFound)
			return
		}
		defer index.Close()
		stat, _ := index.Stat()
		http.ServeContent(c.Writer, c.Request, "index.html", stat.ModTime(), index)
	})
}
