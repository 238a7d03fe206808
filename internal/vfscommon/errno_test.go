package vfscommon

import "testing"

import "github.com/stretchr/testify/assert"

func TestErrnoError(t *testing.T) {
	assert.Equal(t, "Success", OK.Error())
	assert.Equal(t, "Function not implemented", ENOSYS.Error())
	assert.Equal(t, "Low level error 999", Errno(999).Error())
}

func TestErrnoNeg(t *testing.T) {
	assert.Equal(t, 0, OK.Neg())
	assert.Equal(t, -int(ENOENT), ENOENT.Neg())
}

func TestFromNeg(t *testing.T) {
	assert.Equal(t, OK, FromNeg(5))
	assert.Equal(t, ENOENT, FromNeg(-2))
}

func TestErrnoName(t *testing.T) {
	assert.Equal(t, "EIO", EIO.Name())
	assert.Equal(t, "OK", OK.Name())
	assert.Equal(t, "E999", Errno(999).Name())
}
