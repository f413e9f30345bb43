package buffer

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestBuffer(t *testing.T) {
	t.Run("ZeroValue", func(t *testing.T) {
		var b Buffer
		assert.Zero(t, b.Len())
		assert.NoError(t, b.Append([]byte("hello")))
		assert.Equal(t, 5, b.Len())
	})

	t.Run("FIFO", func(t *testing.T) {
		b := New(Unlimited)
		assert.NoError(t, b.Append([]byte("hello, ")))
		assert.NoError(t, b.Append([]byte("world!")))

		p := make([]byte, 5)
		assert.Equal(t, 5, b.ConsumeFront(p))
		assert.Equal(t, "hello", string(p))

		assert.NoError(t, b.Append([]byte("?")))

		rest := make([]byte, 64)
		n := b.ConsumeFront(rest)
		assert.Equal(t, ", world!?", string(rest[:n]))
		assert.Zero(t, b.Len())
	})

	t.Run("EmptyConsume", func(t *testing.T) {
		b := New(Unlimited)
		assert.Zero(t, b.ConsumeFront(make([]byte, 8)))
	})

	t.Run("Limit", func(t *testing.T) {
		b := New(8)

		t.Run("Fits", func(t *testing.T) {
			assert.Equal(t, 8, b.Limit())
			assert.NoError(t, b.Append([]byte("12345678")))
			assert.Zero(t, b.Free())
		})

		t.Run("Overflow", func(t *testing.T) {
			err := b.Append([]byte("9"))
			assert.Error(t, err)
			assert.Equal(t, ErrTooLarge, errors.Cause(err))
			assert.Equal(t, 8, b.Len(), "failed append must not modify buffer")
		})

		t.Run("FreedByDiscard", func(t *testing.T) {
			assert.Equal(t, 3, b.Discard(3))
			assert.Equal(t, 3, b.Free())
			assert.NoError(t, b.Append([]byte("abc")))
			assert.Equal(t, "45678abc", string(b.Bytes()))
		})
	})

	t.Run("Compaction", func(t *testing.T) {
		b := New(Unlimited)
		var want bytes.Buffer

		chunk := bytes.Repeat([]byte{'x'}, 100)
		for i := 0; i < 100; i++ {
			chunk[0] = byte(i)
			assert.NoError(t, b.Append(chunk))
			want.Write(chunk)

			p := make([]byte, 70)
			n := b.ConsumeFront(p)
			assert.Equal(t, want.Next(n), p[:n])
		}

		assert.Equal(t, want.Bytes(), b.Bytes())
	})
}
