// Package dbutil provides bolt helpers shared by the stores
package dbutil

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

// ObjectNotExistErr is returned if an object specified by "key" is not found in a db bucket
type ObjectNotExistErr struct {
	bucket []byte
	key    []byte
}

// NewObjectNotExistErr creates an ObjectNotExistErr
func NewObjectNotExistErr(bucket, key []byte) error {
	return ObjectNotExistErr{
		bucket: bucket,
		key:    key,
	}
}

func (e ObjectNotExistErr) Error() string {
	return fmt.Sprintf("object of key %x not found in bucket %s", e.key, e.bucket)
}

// BucketNotExistErr is returned if a bolt bucket does not exist
type BucketNotExistErr struct {
	bucket []byte
}

// NewBucketNotExistErr creates a BucketNotExistErr
func NewBucketNotExistErr(bucket []byte) error {
	return BucketNotExistErr{
		bucket: bucket,
	}
}

func (e BucketNotExistErr) Error() string {
	return fmt.Sprintf("bucket %s doesn't exist", e.bucket)
}

// CreateBucketFailedErr is returned if creating a bolt.DB bucket fails
type CreateBucketFailedErr struct {
	bucket []byte
	err    error
}

// NewCreateBucketFailedErr returns an CreateBucketFailedErr
func NewCreateBucketFailedErr(bucket []byte, err error) error {
	return CreateBucketFailedErr{
		bucket: bucket,
		err:    err,
	}
}

func (e CreateBucketFailedErr) Error() string {
	return fmt.Sprintf("create bucket %s failed: %v", e.bucket, e.err)
}

// CreateBuckets creates every bucket in bkts if it does not exist yet
func CreateBuckets(tx *bolt.Tx, bkts ...[]byte) error {
	for _, bkt := range bkts {
		if _, err := tx.CreateBucketIfNotExists(bkt); err != nil {
			return NewCreateBucketFailedErr(bkt, err)
		}
	}
	return nil
}

// Uint64Key encodes v as an 8 byte big endian key, so that cursor order matches numeric order
func Uint64Key(v uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return string(b[:])
}

// KeyUint64 decodes a key written by Uint64Key
func KeyUint64(k []byte) (uint64, error) {
	if len(k) != 8 {
		return 0, fmt.Errorf("invalid uint64 key length %d", len(k))
	}
	return binary.BigEndian.Uint64(k), nil
}

// GetBucketObject returns an object from a bucket, unmarshaled from JSON
func GetBucketObject(tx *bolt.Tx, bktName []byte, key string, obj interface{}) error {
	v, err := GetBucketValue(tx, bktName, key)
	if err != nil {
		return err
	}
	if v == nil {
		return NewObjectNotExistErr(bktName, []byte(key))
	}

	if err := json.Unmarshal(v, obj); err != nil {
		return errors.Wrapf(err, "decode value of key %x in bucket %s", key, bktName)
	}

	return nil
}

// GetBucketString returns a string value from a bucket
func GetBucketString(tx *bolt.Tx, bktName []byte, key string) (string, error) {
	v, err := GetBucketValue(tx, bktName, key)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", NewObjectNotExistErr(bktName, []byte(key))
	}

	return string(v), nil
}

// GetBucketValue returns a []byte value from a bucket. If the bucket does not exist,
// it returns an error of type BucketNotExistErr.
// The returned slice is only valid for the life of the transaction.
func GetBucketValue(tx *bolt.Tx, bktName []byte, key string) ([]byte, error) {
	bkt := tx.Bucket(bktName)
	if bkt == nil {
		return nil, NewBucketNotExistErr(bktName)
	}

	return bkt.Get([]byte(key)), nil
}

// PutBucketValue puts a value into a bucket under key. The value is marshaled to JSON
// unless it is already a []byte or a string.
func PutBucketValue(tx *bolt.Tx, bktName []byte, key string, val interface{}) error {
	bkt := tx.Bucket(bktName)
	if bkt == nil {
		return NewBucketNotExistErr(bktName)
	}

	var v []byte
	switch x := val.(type) {
	case []byte:
		v = x
	case string:
		v = []byte(x)
	default:
		var err error
		v, err = json.Marshal(val)
		if err != nil {
			return errors.Wrapf(err, "encode value of key %x in bucket %s", key, bktName)
		}
	}

	return bkt.Put([]byte(key), v)
}

// DeleteBucketValue removes key from a bucket. Deleting a missing key is not an error.
func DeleteBucketValue(tx *bolt.Tx, bktName []byte, key string) error {
	bkt := tx.Bucket(bktName)
	if bkt == nil {
		return NewBucketNotExistErr(bktName)
	}

	return bkt.Delete([]byte(key))
}

// BucketHasKey returns true if a bucket has a non-nil value for a key
func BucketHasKey(tx *bolt.Tx, bktName []byte, key string) (bool, error) {
	v, err := GetBucketValue(tx, bktName, key)
	if err != nil {
		return false, err
	}

	return v != nil, nil
}

// NextSequence returns the NextSequence() from the bucket
func NextSequence(tx *bolt.Tx, bktName []byte) (uint64, error) {
	bkt := tx.Bucket(bktName)
	if bkt == nil {
		return 0, NewBucketNotExistErr(bktName)
	}

	return bkt.NextSequence()
}

// Sequence returns the current Sequence() of the bucket without advancing it
func Sequence(tx *bolt.Tx, bktName []byte) (uint64, error) {
	bkt := tx.Bucket(bktName)
	if bkt == nil {
		return 0, NewBucketNotExistErr(bktName)
	}

	return bkt.Sequence(), nil
}

// ForEach iterates over each value in a bucket, in key order
func ForEach(tx *bolt.Tx, bktName []byte, f func(k, v []byte) error) error {
	bkt := tx.Bucket(bktName)
	if bkt == nil {
		return NewBucketNotExistErr(bktName)
	}

	return bkt.ForEach(f)
}

// Len returns the number of keys in a bucket
func Len(tx *bolt.Tx, bktName []byte) (uint64, error) {
	bkt := tx.Bucket(bktName)
	if bkt == nil {
		return 0, NewBucketNotExistErr(bktName)
	}

	bstats := bkt.Stats()

	if bstats.KeyN < 0 {
		return 0, errors.New("Negative length queried from db stats")
	}

	return uint64(bstats.KeyN), nil
}
