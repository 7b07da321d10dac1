package sslconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSslConfig_Clone_IsIndependent(t *testing.T) {
	orig := SslConfig{
		ServerName:    "example.com",
		ALPNProtocols: []string{"h2", "http/1.1"},
	}
	cloned := orig.Clone()
	cloned.ALPNProtocols[0] = "h3"

	assert.Equal(t, "h2", orig.ALPNProtocols[0])
	assert.Equal(t, "h3", cloned.ALPNProtocols[0])
}

func TestSslConfig_Clone_NilALPN(t *testing.T) {
	orig := SslConfig{ServerName: "example.com"}
	cloned := orig.Clone()
	assert.Nil(t, cloned.ALPNProtocols)
}

func TestSelect_IntersectsPreservingPolicyOrder(t *testing.T) {
	policy := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	server := [][]byte{[]byte("c"), []byte("a")}

	got := Select(server, policy)

	assert.Equal(t, [][]byte{[]byte("a"), []byte("c")}, got)
}

func TestSelect_NoOverlap(t *testing.T) {
	policy := [][]byte{[]byte("a")}
	server := [][]byte{[]byte("z")}

	assert.Nil(t, Select(server, policy))
}

func TestSelect_EmptyInputs(t *testing.T) {
	assert.Nil(t, Select(nil, [][]byte{[]byte("a")}))
	assert.Nil(t, Select([][]byte{[]byte("a")}, nil))
}
