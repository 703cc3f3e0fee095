package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rstms/sdfs"
)

func execute(args ...string) (string, error) {
	cmd := newCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func run(t *testing.T, image string, args ...string) string {
	out, err := execute(append([]string{"--image", image, "-v", "0"}, args...)...)
	require.Nil(t, err, out)
	return out
}

func TestSetupLogging(t *testing.T) {
	require.Nil(t, setupLogging(0, false))
	require.Equal(t, log.ErrorLevel, log.GetLevel())
	require.Nil(t, setupLogging(2, true))
	require.Equal(t, log.DebugLevel, log.GetLevel())
	require.Nil(t, setupLogging(1, false))
	require.Equal(t, log.InfoLevel, log.GetLevel())
	require.NotNil(t, setupLogging(4, true))
}

func TestMountConfig(t *testing.T) {
	t.Setenv("SDFS_CS_PIN", "4")
	t.Setenv("SDFS_AUTO_FORMAT", "true")
	cmd := newCmd()
	require.Nil(t, cmd.PersistentFlags().Parse([]string{"--spi-speed", "25000000"}))
	require.Nil(t, readConfig("", cmd.PersistentFlags()))

	cfg := mountConfig()
	require.Nil(t, cfg.SDIO)
	require.Equal(t, uint8(4), cfg.SPI.CSPin)
	require.Equal(t, uint32(25000000), cfg.SPI.MaxSpeed)
	require.True(t, cfg.AutoFormat)
	require.Zero(t, cfg.Part)

	t.Setenv("SDFS_SDIO", "true")
	cfg = mountConfig()
	require.Nil(t, cfg.SPI)
	require.Equal(t, &sdfs.SDIOConfig{}, cfg.SDIO)
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "card.img")
	run(t, img, "mkimage", "--size", "8", "--label", "CLITEST")
	_, err := execute("--image", img, "-v", "0", "mkimage", "--size", "8")
	require.NotNil(t, err, "existing image")

	src := filepath.Join(dir, "notes.txt")
	require.Nil(t, os.WriteFile(src, []byte("some notes"), 0600))
	run(t, img, "put", src, "/docs/notes.txt")
	run(t, img, "mkdir", "/empty")

	require.Equal(t, "docs\nempty\n", run(t, img, "ls"))
	require.Equal(t, "notes.txt\n", run(t, img, "ls", "/docs"))
	require.Equal(t, "some notes", run(t, img, "cat", "/docs/notes.txt"))
	long := run(t, img, "ls", "-l", "/docs")
	require.True(t, strings.HasPrefix(long, "-  "), long)
	require.Contains(t, long, " 10 ")

	run(t, img, "mv", "/docs/notes.txt", "/notes.txt")
	require.Equal(t, "some notes", run(t, img, "cat", "/notes.txt"))
	run(t, img, "rm", "/notes.txt")
	run(t, img, "rmdir", "/empty")
	require.Equal(t, "docs\n", run(t, img, "ls"))

	info := run(t, img, "info")
	require.Contains(t, info, "type:      FAT16")

	tree := filepath.Join(dir, "tree")
	require.Nil(t, os.MkdirAll(filepath.Join(tree, "sub"), 0700))
	require.Nil(t, os.WriteFile(filepath.Join(tree, "sub", "file"), []byte("x"), 0600))
	run(t, img, "import", tree)
	require.Equal(t, "x", run(t, img, "cat", "/sub/file"))

	run(t, img, "erase")
	_, err = execute("--image", img, "-v", "0", "ls")
	require.NotNil(t, err, "erased card")
	run(t, img, "format")
	require.Equal(t, "", run(t, img, "ls"))
}
