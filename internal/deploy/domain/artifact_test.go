package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestArtifactValidate(t *testing.T) {
	valid := Artifact{
		Name:           "registry",
		FactoryAddress: common.HexToAddress("0xce0042B868300000d44A59004Da54A005ffdcf9f"),
		InitCode:       []byte{0x60},
	}
	require.NoError(t, valid.Validate())

	noCode := valid
	noCode.InitCode = nil
	require.Error(t, noCode.Validate())

	noFactory := valid
	noFactory.FactoryAddress = common.Address{}
	require.Error(t, noFactory.Validate())

	noName := valid
	noName.Name = ""
	require.Error(t, noName.Validate())
}

func TestNewSessionContextGeneratesID(t *testing.T) {
	generated := NewSessionContext("", "testnet", big.NewInt(1))
	require.NotEmpty(t, generated.ID)

	explicit := NewSessionContext("batch-7", "testnet", big.NewInt(1))
	require.Equal(t, "batch-7", explicit.ID)

	require.NotEqual(t, generated.ID, NewSessionContext("", "testnet", big.NewInt(1)).ID)
}
