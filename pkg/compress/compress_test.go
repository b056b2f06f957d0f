package compress

import (
	"bytes"
	"sync"
	"testing"

	"go-oms/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte(`{"order_id":"ORD-2025-001234","status":"pending"}`), 50)

	codecs := []models.Compression{
		models.CompressionNone,
		models.CompressionGzip,
		models.CompressionSnappy,
		models.CompressionLZ4,
		models.CompressionZstd,
	}

	for _, c := range codecs {
		t.Run(c.String(), func(t *testing.T) {
			compressed, err := Compress(c, body)
			require.NoError(t, err)
			if c != models.CompressionNone {
				assert.Less(t, len(compressed), len(body))
			}

			restored, err := Decompress(c, compressed)
			require.NoError(t, err)
			assert.Equal(t, body, restored)
		})
	}
}

func TestUnsupportedCompression(t *testing.T) {
	_, err := Compress(models.Compression(77), []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedCompression)

	_, err = Decompress(models.Compression(77), []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestDecompressCorruptBody(t *testing.T) {
	_, err := Decompress(models.CompressionGzip, []byte("not gzip"))
	assert.Error(t, err)

	_, err = Decompress(models.CompressionZstd, []byte("not zstd"))
	assert.Error(t, err)
}

func TestMessageHelpers(t *testing.T) {
	msg := models.NewMessage("orders", []byte("hello hello hello hello"))
	msg.Header.SetCompression(models.CompressionGzip)

	require.NoError(t, CompressMessage(msg))
	assert.NotEqual(t, []byte("hello hello hello hello"), msg.Value)

	require.NoError(t, DecompressMessage(msg))
	assert.Equal(t, []byte("hello hello hello hello"), msg.Value)
}

func TestZstdCodecsBuiltOnce(t *testing.T) {
	body := bytes.Repeat([]byte("order "), 64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := Compress(models.CompressionZstd, body)
			assert.NoError(t, err)
			back, err := Decompress(models.CompressionZstd, out)
			assert.NoError(t, err)
			assert.Equal(t, body, back)
		}()
	}
	wg.Wait()

	enc, dec, err := zstdCodecs()
	require.NoError(t, err)
	enc2, dec2, _ := zstdCodecs()
	assert.Same(t, enc, enc2)
	assert.Same(t, dec, dec2)
}
