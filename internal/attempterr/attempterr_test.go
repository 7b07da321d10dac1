package attempterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Classification
	}{
		{"ech rejected", ErrEchRejected, ClassificationEchRetriable},
		{"wrapped ech rejected", fmt.Errorf("dial: %w", ErrEchRejected), ClassificationEchRetriable},
		{"certificate invalid", ErrCertificateInvalid, ClassificationTrustAnchorRetriable},
		{"timed out", ErrTimedOut, ClassificationTerminal},
		{"connection refused", ErrConnectionRefused, ClassificationTerminal},
		{"unrelated error", errors.New("boom"), ClassificationTerminal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestIsCertificateError(t *testing.T) {
	assert.True(t, IsCertificateError(ErrCertificateInvalid))
	assert.True(t, IsCertificateError(fmt.Errorf("tls: %w", ErrCertificateInvalid)))
	assert.False(t, IsCertificateError(ErrTimedOut))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(ErrTimedOut))
	assert.True(t, IsTimeout(fmt.Errorf("tcp dial: %w", ErrTimedOut)))
	assert.False(t, IsTimeout(ErrConnectionReset))
}
