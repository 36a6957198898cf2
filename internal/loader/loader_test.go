package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/navaccel/internal/prefetch"
)

// Compile-time checks
var (
	_ prefetch.Loader = Noop{}
	_ prefetch.Loader = (*HTTPLoader)(nil)
	_ prefetch.Loader = (*S3Loader)(nil)
	_ HeadObjectAPI   = (*s3.Client)(nil)
)

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Load(context.Background(), "/anything"))
}

func TestHTTPLoader(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/bundles/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("export default {}"))
	}))
	defer srv.Close()

	l, err := NewHTTPLoader(srv.URL+"/bundles/", srv.Client(), nil)
	require.NoError(t, err)

	t.Run("warms the bundle", func(t *testing.T) {
		require.NoError(t, l.Load(context.Background(), "/dashboard/deposit"))
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "/bundles/dashboard/deposit", paths[len(paths)-1])
	})

	t.Run("non-2xx is a failure", func(t *testing.T) {
		err := l.Load(context.Background(), "/missing")
		assert.ErrorIs(t, err, ErrStatus)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, l.Load(ctx, "/dashboard"))
	})
}

func TestNewHTTPLoader_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPLoader("ftp://bundles.example.com", nil, nil)
	assert.Error(t, err)

	_, err = NewHTTPLoader("://", nil, nil)
	assert.Error(t, err)
}

type fakeHead struct {
	inputs []*s3.HeadObjectInput
	err    error
}

func (f *fakeHead) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(2048)}, nil
}

func TestS3Loader(t *testing.T) {
	fake := &fakeHead{}
	l, err := NewS3Loader(fake, "web-bundles", "routes/", ".js", nil)
	require.NoError(t, err)

	assert.Equal(t, "routes/index.js", l.ObjectKey("/"))
	assert.Equal(t, "routes/dashboard/deposit.js", l.ObjectKey("/dashboard/deposit"))

	require.NoError(t, l.Load(context.Background(), "/dashboard/deposit"))
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "web-bundles", aws.ToString(fake.inputs[0].Bucket))
	assert.Equal(t, "routes/dashboard/deposit.js", aws.ToString(fake.inputs[0].Key))

	fake.err = errors.New("NotFound")
	err = l.Load(context.Background(), "/gone")
	assert.ErrorContains(t, err, "web-bundles/routes/gone.js")
}

func TestNewS3Loader_Validation(t *testing.T) {
	_, err := NewS3Loader(nil, "b", "", "", nil)
	assert.Error(t, err)

	_, err = NewS3Loader(&fakeHead{}, "", "", "", nil)
	assert.Error(t, err)
}

func TestNewS3Client(t *testing.T) {
	client, err := NewS3Client(context.Background(), S3Options{
		Endpoint:  "http://localhost:9000",
		AccessKey: "test",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewS3Client(context.Background(), S3Options{AccessKey: "only-half"})
	assert.Error(t, err)
}
