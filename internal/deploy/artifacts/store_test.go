package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/singleton-deployer/internal/deploy/deployerr"
	"github.com/compose-network/singleton-deployer/internal/deploy/predict"
)

func writeArtifact(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadParsesArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "registry.json", `{
		"to": "0xce0042B868300000d44A59004Da54A005ffdcf9f",
		"data": "0x6080604052",
		"expectedAddress": "0xAAA0000000000000000000000000000000000001",
		"codeHash": "0x290decd9548b62a8d60345a988386fc84ba6bc95484008f6362f93160ef3e563"
	}`)

	artifacts, rejections, err := NewStore(dir, NewOrdering(nil)).Load()

	require.NoError(t, err)
	require.Empty(t, rejections)
	require.Len(t, artifacts, 1)

	artifact := artifacts[0]
	require.Equal(t, "registry", artifact.Name)
	require.Equal(t, common.HexToAddress("0xce0042B868300000d44A59004Da54A005ffdcf9f"), artifact.FactoryAddress)
	require.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, artifact.InitCode)
	require.NotNil(t, artifact.ExpectedAddress)
	require.Equal(t, common.HexToAddress("0xAAA0000000000000000000000000000000000001"), *artifact.ExpectedAddress)
	require.NotNil(t, artifact.ExpectedCodeHash)
}

func TestLoadNamesNestedArtifactsByRelativePath(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, filepath.Join("core", "registry.json"), `{
		"to": "0xce0042B868300000d44A59004Da54A005ffdcf9f",
		"data": "0x00"
	}`)

	artifacts, rejections, err := NewStore(dir, NewOrdering(nil)).Load()

	require.NoError(t, err)
	require.Empty(t, rejections)
	require.Len(t, artifacts, 1)
	require.Equal(t, "core/registry", artifacts[0].Name)
}

func TestLoadRejectsMalformedArtifactsIndividually(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing to", `{"data": "0x00"}`},
		{"missing data", `{"to": "0xce0042B868300000d44A59004Da54A005ffdcf9f"}`},
		{"malformed to", `{"to": "not-an-address", "data": "0x00"}`},
		{"malformed data", `{"to": "0xce0042B868300000d44A59004Da54A005ffdcf9f", "data": "0xzz"}`},
		{"malformed expected", `{"to": "0xce0042B868300000d44A59004Da54A005ffdcf9f", "data": "0x00", "expectedAddress": "nope"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeArtifact(t, dir, "bad.json", tc.content)
			writeArtifact(t, dir, "good.json", `{"to": "0xce0042B868300000d44A59004Da54A005ffdcf9f", "data": "0x00"}`)

			artifacts, rejections, err := NewStore(dir, NewOrdering(nil)).Load()

			require.NoError(t, err)
			require.Len(t, artifacts, 1, "a malformed artifact must not block the valid ones")
			require.Equal(t, "good", artifacts[0].Name)

			require.Len(t, rejections, 1)
			require.Equal(t, "bad", rejections[0].Name)
			require.True(t, deployerr.IsKind(rejections[0].Err, deployerr.KindValidation))
		})
	}
}

func TestLoadPredictsAddressFromSalt(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "salted.json", `{
		"to": "0xce0042B868300000d44A59004Da54A005ffdcf9f",
		"data": "0x6080",
		"salt": "0x01"
	}`)

	artifacts, rejections, err := NewStore(dir, NewOrdering(nil)).Load()

	require.NoError(t, err)
	require.Empty(t, rejections)
	require.Len(t, artifacts, 1)
	require.NotNil(t, artifacts[0].ExpectedAddress)

	var salt [32]byte
	salt[31] = 0x01
	want := predict.Address(common.HexToAddress("0xce0042B868300000d44A59004Da54A005ffdcf9f"), salt, []byte{0x60, 0x80})
	require.Equal(t, want, *artifacts[0].ExpectedAddress)
}

func TestLoadAppliesOrdering(t *testing.T) {
	dir := t.TempDir()
	const body = `{"to": "0xce0042B868300000d44A59004Da54A005ffdcf9f", "data": "0x00"}`
	for _, name := range []string{"alpha.json", "bravo.json", "charlie.json", "delta.json"} {
		writeArtifact(t, dir, name, body)
	}

	ordering := NewOrdering([]string{"charlie", "alpha"})
	artifacts, _, err := NewStore(dir, ordering).Load()

	require.NoError(t, err)

	var names []string
	for _, artifact := range artifacts {
		names = append(names, artifact.Name)
	}
	require.Equal(t, []string{"charlie", "alpha", "bravo", "delta"}, names)
}

func TestLoadMissingDirectoryIsConfigError(t *testing.T) {
	_, _, err := NewStore(filepath.Join(t.TempDir(), "nope"), NewOrdering(nil)).Load()

	require.Error(t, err)
	require.True(t, deployerr.IsKind(err, deployerr.KindConfig))
}
