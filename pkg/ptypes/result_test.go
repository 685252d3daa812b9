package ptypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultErrOk(t *testing.T) {
	r := Result{Status: StatusOk, Payload: []byte("1")}
	assert.NoError(t, r.Err())
}

func TestResultErrUserError(t *testing.T) {
	r := Result{Status: StatusUserError, Message: "boom"}
	var ue *UserError
	assert.ErrorAs(t, r.Err(), &ue)
	assert.Equal(t, "boom", ue.Detail)
}

func TestResultErrSerializationError(t *testing.T) {
	r := Result{Status: StatusSerializationError, Message: "bad bytes"}
	var se *SerializationError
	assert.ErrorAs(t, r.Err(), &se)
	assert.Equal(t, "bad bytes", se.Detail)
}

func TestResultErrWorkerLost(t *testing.T) {
	r := Result{Status: StatusWorkerLost}
	assert.ErrorIs(t, r.Err(), ErrAbortedWorker)
}

func TestResultErrUnknownStatus(t *testing.T) {
	r := Result{Status: ResultStatus("bogus")}
	assert.Error(t, r.Err())
}

func TestWireResultRoundTrip(t *testing.T) {
	r := Result{TaskID: 5, Status: StatusOk, Payload: []byte("x"), Message: "m"}
	got := FromWireResult(r.ToWire())
	assert.Equal(t, r, got)
}

func TestInvalidArgumentErrorUnwrapsToSentinel(t *testing.T) {
	err := &InvalidArgumentError{Detail: "size must be >= 1"}
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
