package pep3118

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package logger. It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger replaces the package logger. Call it before the first export.
// A nil logger restores the no-op default.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// MarshalLogObject renders the view's buffer record.
func (v *View) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("len", v.Len)
	enc.AddInt("itemsize", v.ItemSize)
	enc.AddBool("readonly", v.Readonly)
	enc.AddInt("ndim", v.NDim)
	if v.Format != "" {
		enc.AddString("format", v.Format)
	}
	if err := enc.AddArray("shape", intArray(v.Shape)); err != nil {
		return err
	}
	return enc.AddArray("strides", intArray(v.Strides))
}

type intArray []int

func (a intArray) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, x := range a {
		enc.AppendInt(x)
	}
	return nil
}
