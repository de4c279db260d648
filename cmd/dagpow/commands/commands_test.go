package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
)

func init() {
	RootCmd.AddCommand(
		NewSeedHashCmd(),
		NewMakeCacheCmd(),
		NewMakeDAGCmd(),
		NewHashCmd(),
		NewMineCmd(),
		NewServeCmd(),
		NewVerifyCmd(),
	)
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	require.NoError(t, err, errOut.String())
	return out.String()
}

// testConfigFile keeps every directory empty so nothing touches the home
// directory.
func testConfigFile(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "dagpow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_dir: ""
dataset_dir: ""
registry_dir: ""
pow_mode: test
threads: 2
log_level: error
`), 0644))
	return path
}

func TestSeedHashCmd(t *testing.T) {
	out := execute(t, "seedhash", "30000")
	require.Equal(t, "290decd9548b62a8d60345a988386fc84ba6bc95484008f6362f93160ef3e563\n", out)
}

func TestMakeCacheAndDAGCmd(t *testing.T) {
	cfg := testConfigFile(t)
	dir := t.TempDir()

	out := execute(t, "--config", cfg, "makecache", "0", dir)
	require.Contains(t, out, dagash.FileName(dagash.KindCache, dagash.SeedHash(0), true))
	require.Contains(t, out, "mismatch")

	out = execute(t, "--config", cfg, "makedag", "0", dir)
	require.Contains(t, out, dagash.FileName(dagash.KindDataset, dagash.SeedHash(0), true))

	out = execute(t, "--config", cfg, "makedag", "0", dir)
	require.Contains(t, out, "match")
	require.NotContains(t, out, "mismatch")
}

func TestHashAndMineCmd(t *testing.T) {
	cfg := testConfigFile(t)
	header := strings.Repeat("ab", 32)

	light := execute(t, "--config", cfg, "hash", "--header", header, "--nonce", "5")
	full := execute(t, "--config", cfg, "hash", "--header", header, "--nonce", "5", "--full")
	require.Equal(t, light, full)
	require.Contains(t, light, "result: ")

	out := execute(t, "--config", cfg, "mine", "--header", header, "--difficulty", "16")
	idx := strings.Index(out, "seal:  ")
	require.NotEqual(t, -1, idx)
	seal := strings.TrimSpace(out[idx+len("seal:  "):])

	out = execute(t, "--config", cfg, "verify", seal, "--difficulty", "16")
	require.Contains(t, out, "valid seal for block 0")
}

func TestMineRetargetCmd(t *testing.T) {
	cfg := testConfigFile(t)
	header := strings.Repeat("cd", 32)

	// Every search is far quicker than an hour, so each step multiplies
	// the difficulty by the largest factor allowed.
	out := execute(t, "--config", cfg, "mine", "--header", header,
		"--difficulty", "4", "--seals", "3", "--block-time", "1h")
	require.Equal(t, 3, strings.Count(out, "seal:  "))
	require.Contains(t, out, "block: 0\ndifficulty: 4\n")
	require.Contains(t, out, "block: 1\ndifficulty: 16\n")
	require.Contains(t, out, "block: 2\ndifficulty: 64\n")
}
