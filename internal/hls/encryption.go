package hls

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/jmylchreest/ffhls/internal/ffmpeg"
	"github.com/jmylchreest/ffhls/internal/observability"
	"github.com/jmylchreest/ffhls/internal/storage"
)

// KeyLength is the AES-128 key size in bytes.
const KeyLength = 16

// KeyInfoFilename is the name of the key-info file passed to -hls_key_info_file.
const KeyInfoFilename = "hls_encryption.keyinfo"

const (
	segmentOpenPrefix = "Opening 'crypto:/"
	segmentOpenSuffix = ".ts' for writing"
)

// ErrInvalidKeyLength is returned for keys that are not KeyLength bytes long.
var ErrInvalidKeyLength = errors.New("encryption key must be 16 bytes")

// NewKeyListener is called with the file name and bytes of every generated key.
type NewKeyListener func(filename string, key []byte)

// OpensEncryptedSegment reports whether an ffmpeg output line announces that
// the HLS muxer is opening a new encrypted segment.
func OpensEncryptedSegment(line string) bool {
	return strings.Contains(line, segmentOpenPrefix) && strings.Contains(line, segmentOpenSuffix)
}

// GenerateEncryptionKey returns KeyLength random bytes.
func GenerateEncryptionKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// Encryption manages the AES keys of one export. Keys live in a private
// temporary directory that Cleanup removes.
//
// Rotation is driven by ffmpeg's own output: ffmpeg re-reads the key-info file
// before every segment when periodic_rekey is set, and the rotation listener
// rewrites that file whenever a segment is opened. If ffmpeg never prints the
// expected line, every segment uses the initial key.
type Encryption struct {
	tempRoot string
	metrics  *observability.Metrics

	mu             sync.Mutex
	enabled        bool
	rotating       bool
	key            []byte
	iv             string
	listener       NewKeyListener
	segmentsPerKey int
	segments       int
	rotations      int
	temps          *storage.TemporaryDirectories
	secretsDir     string
	rotateErr      error
}

// NewEncryption creates a disabled Encryption whose secrets are kept below tempRoot
// (empty = os.TempDir()).
func NewEncryption(tempRoot string) *Encryption {
	return &Encryption{tempRoot: tempRoot, segmentsPerKey: 1}
}

// WithMetrics counts every generated key on m.
func (e *Encryption) WithMetrics(m *observability.Metrics) *Encryption {
	e.metrics = m
	return e
}

// WithEncryptionKey encrypts every segment with one key. A nil key is
// generated on first use. listener may be nil.
func (e *Encryption) WithEncryptionKey(key []byte, listener NewKeyListener) error {
	if key != nil && len(key) != KeyLength {
		return ErrInvalidKeyLength
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.arm(); err != nil {
		return err
	}
	e.key = nil
	if key != nil {
		e.key = append([]byte(nil), key...)
	}
	e.listener = listener
	e.rotating = false
	return nil
}

// WithRotatingEncryptionKey generates a new key every segmentsPerKey segments
// (values below 1 mean every segment). listener may be nil.
func (e *Encryption) WithRotatingEncryptionKey(listener NewKeyListener, segmentsPerKey int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.arm(); err != nil {
		return err
	}
	if segmentsPerKey < 1 {
		segmentsPerKey = 1
	}
	e.key = nil
	e.listener = listener
	e.rotating = true
	e.segmentsPerKey = segmentsPerKey
	return nil
}

// arm enables encryption and fixes the IV used for the whole export.
func (e *Encryption) arm() error {
	if e.iv == "" {
		iv, err := GenerateEncryptionKey()
		if err != nil {
			return err
		}
		e.iv = hex.EncodeToString(iv)
	}
	e.enabled = true
	return nil
}

// Enabled reports whether segments will be encrypted.
func (e *Encryption) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Rotating reports whether keys rotate during the export.
func (e *Encryption) Rotating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotating
}

// IV returns the hex encoded initialization vector.
func (e *Encryption) IV() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.iv
}

// Rotations returns how many keys have been written.
func (e *Encryption) Rotations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotations
}

// RotateEncryptionKey writes a new key file and points the key-info file at it.
// It returns the key-info file path, which is the same on every call.
func (e *Encryption) RotateEncryptionKey() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotate()
}

func (e *Encryption) rotate() (string, error) {
	if !e.enabled {
		return "", errors.New("encryption is not enabled")
	}

	if e.secretsDir == "" {
		e.temps = storage.NewTemporaryDirectories(e.tempRoot)
		dir, err := e.temps.Create("secrets")
		if err != nil {
			return "", fmt.Errorf("allocating secrets directory: %w", err)
		}
		e.secretsDir = dir
	}

	key := e.key
	if key == nil {
		generated, err := GenerateEncryptionKey()
		if err != nil {
			return "", err
		}
		key = generated
	}

	filename := uuid.NewString() + ".key"
	keyPath := filepath.Join(e.secretsDir, filename)
	if err := renameio.WriteFile(keyPath, key, 0o600); err != nil {
		return "", fmt.Errorf("writing key file: %w", err)
	}

	keyInfoPath := filepath.Join(e.secretsDir, KeyInfoFilename)
	keyInfo := strings.Join([]string{keyPath, keyPath, e.iv}, "\n")
	if err := renameio.WriteFile(keyInfoPath, []byte(keyInfo), 0o600); err != nil {
		return "", fmt.Errorf("writing key info file: %w", err)
	}

	e.rotations++
	e.metrics.IncKeyRotations()

	if e.listener != nil {
		e.listener(filename, append([]byte(nil), key...))
	}
	return keyInfoPath, nil
}

// EncryptedHLSParameters returns the muxer arguments that enable encryption,
// writing the first key. It returns nil when encryption is disabled.
func (e *Encryption) EncryptedHLSParameters() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return nil, nil
	}

	keyInfoPath, err := e.rotate()
	if err != nil {
		return nil, err
	}

	params := []string{"-hls_key_info_file", keyInfoPath}
	if e.rotating {
		params = append(params, "-hls_flags", "periodic_rekey")
	}
	return params, nil
}

// RotationListener returns the line listener that rotates keys as segments
// are opened, or nil when keys do not rotate.
func (e *Encryption) RotationListener() ffmpeg.LineListener {
	if !e.Rotating() {
		return nil
	}
	return func(line string) {
		if !OpensEncryptedSegment(line) {
			return
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		e.segments++
		if e.segments%e.segmentsPerKey != 0 {
			return
		}
		if _, err := e.rotate(); err != nil && e.rotateErr == nil {
			e.rotateErr = err
		}
	}
}

// Err returns the first error raised while rotating from the listener.
func (e *Encryption) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotateErr
}

// Cleanup deletes every key and key-info file. Counters are reset so the
// same Encryption can serve another export; the IV is kept.
func (e *Encryption) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.temps != nil {
		err = e.temps.Release()
	}
	e.temps = nil
	e.secretsDir = ""
	e.segments = 0
	e.rotations = 0
	e.rotateErr = nil
	return err
}

// SecretsDir returns the directory holding the current keys, if any.
func (e *Encryption) SecretsDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.secretsDir
}
