package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecute_Version(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"strand", "version"}
	assert.NoError(t, Execute())

	os.Args = []string{"strand", "--version"}
	assert.NoError(t, Execute())
}

func TestExecute_Help(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"strand", "help"}
	assert.NoError(t, Execute())
}

func TestExecute_UnknownCommand(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"strand", "frobnicate"}
	assert.Error(t, Execute())
}
