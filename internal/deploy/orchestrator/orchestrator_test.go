package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/singleton-deployer/internal/deploy/chain"
	"github.com/compose-network/singleton-deployer/internal/deploy/domain"
	"github.com/compose-network/singleton-deployer/internal/deploy/gas"
	"github.com/compose-network/singleton-deployer/internal/deploy/predict"
)

// Well-known development key, not a secret.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testChainID = big.NewInt(1337)
	factoryAddr = common.HexToAddress("0xce0042B868300000d44A59004Da54A005ffdcf9f")
)

type fakeClient struct {
	// code holds successive CodeAt answers per address; the last entry
	// repeats once the queue is drained. A missing address reads as empty.
	code    map[common.Address][][]byte
	codeErr error

	receipts []*types.Receipt
	sent     []*types.Transaction
	sendErr  error
	nonce    uint64
}

func (f *fakeClient) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	if f.codeErr != nil {
		return nil, f.codeErr
	}
	queue := f.code[address]
	if len(queue) == 0 {
		return nil, nil
	}
	head := queue[0]
	if len(queue) > 1 {
		f.code[address] = queue[1:]
	}
	return head, nil
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}

func (f *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeClient) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if len(f.receipts) == 0 {
		return nil, errors.New("no receipt queued")
	}
	receipt := f.receipts[0]
	f.receipts = f.receipts[1:]
	return receipt, nil
}

type fakeSink struct {
	recorded []domain.Result
}

func (f *fakeSink) RecordArtifact(session domain.SessionContext, result domain.Result) error {
	f.recorded = append(f.recorded, result)
	return nil
}

func newTestOrchestrator(t *testing.T, client *fakeClient, sink *fakeSink) *Orchestrator {
	t.Helper()

	signer, err := chain.NewSigner(testKeyHex, testChainID)
	require.NoError(t, err)

	estimator := gas.NewEstimator(gas.Limits{
		WarningThreshold: 5_000_000,
		MaxLimit:         10_000_000,
		DefaultGasPrice:  big.NewInt(1),
	})

	return New(client, signer, estimator, sink, Config{
		PacingDelay:      0,
		ReadBackAttempts: 2,
		ReadBackDelay:    time.Millisecond,
	})
}

func testSession() domain.SessionContext {
	return domain.NewSessionContext("test-session", "testnet", testChainID)
}

func addr(hex string) *common.Address {
	address := common.HexToAddress(hex)
	return &address
}

func artifact(name string, expected *common.Address) domain.Artifact {
	return domain.Artifact{
		Name:            name,
		FactoryAddress:  factoryAddr,
		InitCode:        []byte{0x60, 0x80, 0x60, 0x40},
		ExpectedAddress: expected,
	}
}

func successReceipt(block int64) *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(block),
		GasUsed:     90_000,
	}
}

func TestDeployBatchIdempotency(t *testing.T) {
	deployedCode := []byte{0xfe, 0xed}
	expectedA := addr("0xAAA0000000000000000000000000000000000001")
	expectedB := addr("0xAAA0000000000000000000000000000000000002")

	client := &fakeClient{code: map[common.Address][][]byte{
		*expectedA: {deployedCode},
		*expectedB: {deployedCode},
	}}
	sink := &fakeSink{}

	results, err := newTestOrchestrator(t, client, sink).DeployBatch(
		context.Background(), testSession(),
		[]domain.Artifact{artifact("a", expectedA), artifact("b", expectedB)},
	)

	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Empty(t, client.sent, "already-deployed artifacts must send no transactions")
	for i, result := range results {
		require.True(t, result.Success, "result %d", i)
		require.Nil(t, result.TransactionHash, "result %d", i)
	}
	require.Equal(t, *expectedA, *results[0].ResolvedAddress)
	require.Equal(t, *expectedB, *results[1].ResolvedAddress)
}

func TestDeployBatchPreservesOrderAndCount(t *testing.T) {
	code := []byte{0x01}
	names := []string{"zebra", "alpha", "middle"}

	client := &fakeClient{code: map[common.Address][][]byte{}}
	var batch []domain.Artifact
	for i, name := range names {
		expected := addr("0xBBB000000000000000000000000000000000000" + string(rune('1'+i)))
		client.code[*expected] = [][]byte{code}
		batch = append(batch, artifact(name, expected))
	}

	results, err := newTestOrchestrator(t, client, &fakeSink{}).DeployBatch(context.Background(), testSession(), batch)

	require.NoError(t, err)
	require.Len(t, results, len(names))
	for i, name := range names {
		require.Equal(t, name, results[i].Name)
	}
}

func TestDeployBatchFailureDoesNotAbort(t *testing.T) {
	// First artifact reverts on-chain, second is already deployed.
	expectedB := addr("0xAAA0000000000000000000000000000000000002")

	client := &fakeClient{
		code: map[common.Address][][]byte{
			*expectedB: {{0x01}},
		},
		receipts: []*types.Receipt{{
			Status:      types.ReceiptStatusFailed,
			BlockNumber: big.NewInt(10),
			GasUsed:     21_000,
		}},
	}
	sink := &fakeSink{}

	session := testSession()
	results, err := newTestOrchestrator(t, client, sink).DeployBatch(
		context.Background(), session,
		[]domain.Artifact{artifact("first", nil), artifact("second", expectedB)},
	)

	require.NoError(t, err)
	require.Len(t, results, 2)

	require.False(t, results[0].Success)
	require.Equal(t, "Transaction failed", results[0].Error)
	require.NotNil(t, results[0].TransactionHash)

	require.True(t, results[1].Success)
	require.Equal(t, *expectedB, *results[1].ResolvedAddress)

	summary := session.Summarize(results)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 1, summary.Successful)
	require.Equal(t, 1, summary.Failed)
}

func TestDeploySubmitsAndVerifies(t *testing.T) {
	expected := addr("0xAAA0000000000000000000000000000000000001")
	deployedCode := []byte{0x60, 0x0a}

	client := &fakeClient{
		// Empty at the existence check, present after the deployment.
		code:     map[common.Address][][]byte{*expected: {{}, deployedCode}},
		receipts: []*types.Receipt{successReceipt(42)},
	}
	sink := &fakeSink{}

	results, err := newTestOrchestrator(t, client, sink).DeployBatch(
		context.Background(), testSession(),
		[]domain.Artifact{artifact("token", expected)},
	)

	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, client.sent, 1)

	result := results[0]
	require.True(t, result.Success)
	require.Equal(t, *expected, *result.ResolvedAddress)
	require.NotNil(t, result.TransactionHash)
	require.Equal(t, big.NewInt(42), result.BlockNumber)
	require.Equal(t, uint64(90_000), result.GasUsed)

	sent := client.sent[0]
	require.Equal(t, factoryAddr, *sent.To())
	require.Equal(t, []byte{0x60, 0x80, 0x60, 0x40}, sent.Data())
}

func TestDeployTrustsReceiptWhenCodeNeverAppears(t *testing.T) {
	expected := addr("0xAAA0000000000000000000000000000000000003")

	client := &fakeClient{
		code:     map[common.Address][][]byte{},
		receipts: []*types.Receipt{successReceipt(7)},
	}

	results, err := newTestOrchestrator(t, client, &fakeSink{}).DeployBatch(
		context.Background(), testSession(),
		[]domain.Artifact{artifact("ghost", expected)},
	)

	require.NoError(t, err)
	require.True(t, results[0].Success)
	require.Equal(t, *expected, *results[0].ResolvedAddress)
}

func TestDeployUsesReceiptAddressWithoutExpected(t *testing.T) {
	created := common.HexToAddress("0xCCC0000000000000000000000000000000000001")
	receipt := successReceipt(3)
	receipt.ContractAddress = created

	client := &fakeClient{
		code:     map[common.Address][][]byte{},
		receipts: []*types.Receipt{receipt},
	}

	results, err := newTestOrchestrator(t, client, &fakeSink{}).DeployBatch(
		context.Background(), testSession(),
		[]domain.Artifact{artifact("anon", nil)},
	)

	require.NoError(t, err)
	require.True(t, results[0].Success)
	require.Equal(t, created, *results[0].ResolvedAddress)
}

func TestDeployCodeHashMismatchStaysSuccessful(t *testing.T) {
	expected := addr("0xAAA0000000000000000000000000000000000004")
	deployedCode := []byte{0x11, 0x22}
	wrongHash := predict.CodeHash([]byte{0x99})

	art := artifact("mismatch", expected)
	art.ExpectedCodeHash = &wrongHash

	client := &fakeClient{code: map[common.Address][][]byte{*expected: {deployedCode}}}

	results, err := newTestOrchestrator(t, client, &fakeSink{}).DeployBatch(
		context.Background(), testSession(), []domain.Artifact{art},
	)

	require.NoError(t, err)
	require.True(t, results[0].Success)
	require.Empty(t, client.sent)
}

func TestDeploySendFailureContinuesBatch(t *testing.T) {
	expectedB := addr("0xAAA0000000000000000000000000000000000005")

	client := &fakeClient{
		code:    map[common.Address][][]byte{*expectedB: {{0x01}}},
		sendErr: errors.New("insufficient funds for gas * price + value"),
	}

	results, err := newTestOrchestrator(t, client, &fakeSink{}).DeployBatch(
		context.Background(), testSession(),
		[]domain.Artifact{artifact("broke", nil), artifact("fine", expectedB)},
	)

	require.NoError(t, err)
	require.Len(t, results, 2)
	require.False(t, results[0].Success)
	require.NotEmpty(t, results[0].Error)
	require.True(t, results[1].Success)
}

func TestDeployBatchRecordsEveryResult(t *testing.T) {
	expected := addr("0xAAA0000000000000000000000000000000000006")
	client := &fakeClient{code: map[common.Address][][]byte{*expected: {{0x01}}}}
	sink := &fakeSink{}

	_, err := newTestOrchestrator(t, client, sink).DeployBatch(
		context.Background(), testSession(),
		[]domain.Artifact{artifact("only", expected)},
	)

	require.NoError(t, err)
	require.Len(t, sink.recorded, 1)
	require.Equal(t, "only", sink.recorded[0].Name)
}

func TestDeployBatchStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{code: map[common.Address][][]byte{}}
	results, err := newTestOrchestrator(t, client, &fakeSink{}).DeployBatch(
		ctx, testSession(), []domain.Artifact{artifact("never", nil)},
	)

	require.Error(t, err)
	require.Empty(t, results)
	require.Empty(t, client.sent)
}

func TestDeployRejectsInvalidArtifact(t *testing.T) {
	invalid := domain.Artifact{Name: "empty", FactoryAddress: factoryAddr}

	client := &fakeClient{code: map[common.Address][][]byte{}}
	results, err := newTestOrchestrator(t, client, &fakeSink{}).DeployBatch(
		context.Background(), testSession(), []domain.Artifact{invalid},
	)

	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.NotEmpty(t, results[0].Error)
	require.Empty(t, client.sent)
}
