package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddr(t *testing.T) {
	valid := []string{
		"127.0.0.1:8000",
		"localhost:8501",
		":8000",
		"0.0.0.0:0",
		"[::1]:8000",
	}
	for _, addr := range valid {
		assert.NoError(t, validateAddr(addr), "expected %q to be valid", addr)
	}

	invalid := []string{
		"8000",          // no colon
		"127.0.0.1:",    // missing port
		"127.0.0.1:abc", // non-numeric port
		"127.0.0.1:99999",
		"bad host:8000",
	}
	for _, addr := range invalid {
		assert.Error(t, validateAddr(addr), "expected %q to be invalid", addr)
	}
}

func TestParseAddr(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	t.Run("default", func(t *testing.T) {
		os.Args = []string{"screenlens", "serve"}
		addr, err := parseAddr("serve", "127.0.0.1:8000")
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:8000", addr)
	})

	t.Run("positional", func(t *testing.T) {
		os.Args = []string{"screenlens", "serve", ":9000"}
		addr, err := parseAddr("serve", "127.0.0.1:8000")
		require.NoError(t, err)
		assert.Equal(t, ":9000", addr)
	})

	t.Run("flag", func(t *testing.T) {
		os.Args = []string{"screenlens", "serve", "--addr", ":9000"}
		addr, err := parseAddr("serve", "127.0.0.1:8000")
		require.NoError(t, err)
		assert.Equal(t, ":9000", addr)
	})

	t.Run("invalid", func(t *testing.T) {
		os.Args = []string{"screenlens", "serve", "not-an-addr"}
		_, err := parseAddr("serve", "127.0.0.1:8000")
		assert.Error(t, err)
	})
}
