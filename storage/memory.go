package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const memoryScheme = "memory"

// Object is a stored object held by Memory.
type Object struct {
	Data        []byte
	ContentType string
	ACL         string
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// WithSecret fixes the signing key instead of a random one.
func WithSecret(secret []byte) MemoryOption {
	return func(m *Memory) {
		m.secret = secret
	}
}

// Memory is an in-process ObjectStore. Signed URLs use the memory:// scheme,
// carry an HMAC over key and expiry and can be followed with Fetch.
type Memory struct {
	sync.RWMutex
	bucket  string
	secret  []byte
	now     func() time.Time
	objects map[string]Object
}

func NewMemory(bucket string, opts ...MemoryOption) *Memory {
	m := &Memory{
		bucket:  bucket,
		now:     time.Now,
		objects: make(map[string]Object),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.secret == nil {
		m.secret = make([]byte, 32)
		if _, err := rand.Read(m.secret); err != nil {
			panic(fmt.Sprintf("storage: unable to generate signing secret: %v", err))
		}
	}
	return m
}

func (m *Memory) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return NewObjectError("put", m.bucket, key, err)
	}
	if size >= 0 && n != size {
		return NewObjectError("put", m.bucket, key,
			fmt.Errorf("short body: expected %d bytes, got %d", size, n))
	}

	m.Lock()
	defer m.Unlock()
	m.objects[key] = Object{
		Data:        buf.Bytes(),
		ContentType: contentType,
		ACL:         "private",
	}
	return nil
}

func (m *Memory) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	m.RLock()
	_, ok := m.objects[key]
	m.RUnlock()
	if !ok {
		return "", NewObjectError("sign", m.bucket, key, ErrObjectNotFound)
	}

	expires := m.now().Add(expiry).Unix()
	q := url.Values{}
	q.Set("X-Expires", strconv.FormatInt(expires, 10))
	q.Set("X-Signature", m.sign(key, expires))

	u := url.URL{
		Scheme:   memoryScheme,
		Host:     m.bucket,
		Path:     "/" + key,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// Get returns the stored object for key.
func (m *Memory) Get(key string) (Object, bool) {
	m.RLock()
	defer m.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.objects)
}

// Fetch follows a signed URL issued by this store and returns the object bytes.
func (m *Memory) Fetch(rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signed url: %w", err)
	}
	if u.Scheme != memoryScheme || u.Host != m.bucket {
		return nil, ErrInvalidSignature
	}
	key := strings.TrimPrefix(u.Path, "/")

	expires, err := strconv.ParseInt(u.Query().Get("X-Expires"), 10, 64)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	if !hmac.Equal([]byte(u.Query().Get("X-Signature")), []byte(m.sign(key, expires))) {
		return nil, ErrInvalidSignature
	}
	if m.now().Unix() > expires {
		return nil, ErrURLExpired
	}

	obj, ok := m.Get(key)
	if !ok {
		return nil, NewObjectError("get", m.bucket, key, ErrObjectNotFound)
	}
	return bytes.Clone(obj.Data), nil
}

func (m *Memory) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", m.bucket, key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
