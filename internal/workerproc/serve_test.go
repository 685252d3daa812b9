package workerproc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propool/procpool/pkg/codec"
	"github.com/propool/procpool/pkg/ptypes"
	"github.com/propool/procpool/pkg/registry"
	"github.com/propool/procpool/pkg/wireframe"
)

func writeTask(t *testing.T, buf *bytes.Buffer, taskID uint64, callableRef string, args []byte) {
	t.Helper()
	c := codec.Default()
	body, err := c.Encode(ptypes.CallRequest{CallableRef: callableRef, Args: args})
	require.NoError(t, err)
	require.NoError(t, wireframe.WriteTaggedFrame(buf, taskID, body))
}

func readResult(t *testing.T, buf *bytes.Buffer) ptypes.Result {
	t.Helper()
	taskID, body, err := wireframe.ReadTaggedFrame(buf)
	require.NoError(t, err)
	var wire ptypes.WireResult
	require.NoError(t, codec.Default().Decode(body, &wire))
	result := ptypes.FromWireResult(wire)
	assert.Equal(t, taskID, uint64(result.TaskID))
	return result
}

func TestServeEchoesSuccessfulCall(t *testing.T) {
	reg := registry.New()
	reg.Register("echo", func(args []byte) ([]byte, error) { return args, nil })

	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	writeTask(t, in, 1, "echo", []byte(`"hi"`))

	err := Serve(in, out, reg, codec.Default(), nil)
	require.NoError(t, err)

	result := readResult(t, out)
	assert.Equal(t, ptypes.StatusOk, result.Status)
	assert.Equal(t, `"hi"`, string(result.Payload))
}

func TestServeReturnsUserErrorForUnregisteredCallable(t *testing.T) {
	reg := registry.New()

	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	writeTask(t, in, 2, "does_not_exist", nil)

	require.NoError(t, Serve(in, out, reg, codec.Default(), nil))

	result := readResult(t, out)
	assert.Equal(t, ptypes.StatusUserError, result.Status)
}

func TestServeReturnsUserErrorWhenHandlerFails(t *testing.T) {
	reg := registry.New()
	reg.Register("fails", func(args []byte) ([]byte, error) {
		return nil, assertionError("always fails")
	})

	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	writeTask(t, in, 3, "fails", nil)

	require.NoError(t, Serve(in, out, reg, codec.Default(), nil))

	result := readResult(t, out)
	assert.Equal(t, ptypes.StatusUserError, result.Status)
	assert.Contains(t, result.Message, "always fails")
}

func TestServeReturnsSerializationErrorOnUndecodableBody(t *testing.T) {
	reg := registry.New()

	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	require.NoError(t, wireframe.WriteTaggedFrame(in, 4, []byte("not a valid CallRequest at all }{")))

	require.NoError(t, Serve(in, out, reg, codec.Default(), nil))

	result := readResult(t, out)
	assert.Equal(t, ptypes.StatusSerializationError, result.Status)
}

func TestServeProcessesMultipleFramesThenReturnsOnEOF(t *testing.T) {
	reg := registry.New()
	reg.Register("echo", func(args []byte) ([]byte, error) { return args, nil })

	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	writeTask(t, in, 10, "echo", []byte("1"))
	writeTask(t, in, 11, "echo", []byte("2"))

	require.NoError(t, Serve(in, out, reg, codec.Default(), nil))

	first := readResult(t, out)
	second := readResult(t, out)
	assert.Equal(t, ptypes.TaskID(10), first.TaskID)
	assert.Equal(t, ptypes.TaskID(11), second.TaskID)
}

// failFirstEncodeCodec fails its first Encode call and delegates every
// call after that to the default JSON codec, letting a test drive
// writeResult's fallback branch (the result itself fails to encode,
// but the minimal fallback frame it builds in response succeeds).
type failFirstEncodeCodec struct {
	calls int
}

func (c *failFirstEncodeCodec) Encode(v any) ([]byte, error) {
	c.calls++
	if c.calls == 1 {
		return nil, assertionError("encode: simulated failure")
	}
	return codec.Default().Encode(v)
}

func (c *failFirstEncodeCodec) Decode(data []byte, v any) error {
	return codec.Default().Decode(data, v)
}

func TestServeFallsBackToSerializationErrorWhenResultEncodeFails(t *testing.T) {
	reg := registry.New()
	reg.Register("echo", func(args []byte) ([]byte, error) { return args, nil })

	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	writeTask(t, in, 5, "echo", []byte(`"hi"`))

	require.NoError(t, Serve(in, out, reg, &failFirstEncodeCodec{}, nil))

	result := readResult(t, out)
	assert.Equal(t, ptypes.TaskID(5), result.TaskID)
	assert.Equal(t, ptypes.StatusSerializationError, result.Status)
	assert.Contains(t, result.Message, "output:")
}

type assertionError string

func (e assertionError) Error() string { return string(e) }
