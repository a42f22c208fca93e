// Package testutil provides testing helpers shared by the package tests
package testutil

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/sirupsen/logrus"
	logrus_test "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// PrepareDB creates and opens a temporary test DB and returns it with a cleanup callback
func PrepareDB(t *testing.T) (*bolt.DB, func()) {
	f, err := ioutil.TempFile("", "testdb")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	db, err := bolt.Open(f.Name(), 0700, &bolt.Options{
		Timeout: time.Second,
	})
	require.NoError(t, err)

	return db, func() {
		db.Close()
		os.Remove(f.Name())
	}
}

// NewLogger returns a logrus logger with a hook that records log entries for inspection
func NewLogger(t *testing.T) (*logrus.Logger, *logrus_test.Hook) {
	log, hook := logrus_test.NewNullLogger()
	log.Level = logrus.DebugLevel
	return log, hook
}

// CheckError calls f and fails the test if it returns an error
func CheckError(t *testing.T, f func() error) {
	if err := f(); err != nil {
		t.Error(err)
	}
}

// TempFilename returns the name of a non-existing file in a fresh temp dir
func TempFilename(t *testing.T, name string) (string, func()) {
	dir, err := ioutil.TempDir("", "kittymarket")
	require.NoError(t, err)
	return filepath.Join(dir, fmt.Sprintf("%s-%d", name, time.Now().UnixNano())), func() {
		os.RemoveAll(dir)
	}
}
