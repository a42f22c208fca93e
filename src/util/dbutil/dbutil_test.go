package dbutil

import (
	"sort"
	"testing"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/require"

	"github.com/kittycash/kittymarket/src/util/testutil"
)

var testBkt = []byte("test")

type testObj struct {
	Foo string
	Bar int
}

func TestUint64Key(t *testing.T) {
	keys := []string{
		Uint64Key(256),
		Uint64Key(1),
		Uint64Key(0),
		Uint64Key(1 << 40),
	}
	require.Len(t, keys[0], 8)

	sort.Strings(keys)
	for i, want := range []uint64{0, 1, 256, 1 << 40} {
		v, err := KeyUint64([]byte(keys[i]))
		require.NoError(t, err)
		require.Equal(t, want, v)
	}

	_, err := KeyUint64([]byte("short"))
	require.Error(t, err)
}

func TestBucketValues(t *testing.T) {
	db, shutdown := testutil.PrepareDB(t)
	defer shutdown()

	err := db.Update(func(tx *bolt.Tx) error {
		return CreateBuckets(tx, testBkt)
	})
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		require.NoError(t, PutBucketValue(tx, testBkt, "obj", testObj{Foo: "foo", Bar: 7}))
		require.NoError(t, PutBucketValue(tx, testBkt, "str", "hello"))
		require.NoError(t, PutBucketValue(tx, testBkt, "raw", []byte{1, 2}))
		return nil
	})
	require.NoError(t, err)

	err = db.View(func(tx *bolt.Tx) error {
		var obj testObj
		require.NoError(t, GetBucketObject(tx, testBkt, "obj", &obj))
		require.Equal(t, testObj{Foo: "foo", Bar: 7}, obj)

		s, err := GetBucketString(tx, testBkt, "str")
		require.NoError(t, err)
		require.Equal(t, "hello", s)

		v, err := GetBucketValue(tx, testBkt, "raw")
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2}, v)

		err = GetBucketObject(tx, testBkt, "missing", &obj)
		require.Equal(t, NewObjectNotExistErr(testBkt, []byte("missing")), err)

		_, err = GetBucketString(tx, testBkt, "missing")
		require.IsType(t, ObjectNotExistErr{}, err)

		has, err := BucketHasKey(tx, testBkt, "str")
		require.NoError(t, err)
		require.True(t, has)

		n, err := Len(tx, testBkt)
		require.NoError(t, err)
		require.Equal(t, uint64(3), n)

		var keys []string
		require.NoError(t, ForEach(tx, testBkt, func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		}))
		require.Equal(t, []string{"obj", "raw", "str"}, keys)

		_, err = GetBucketValue(tx, []byte("nope"), "x")
		require.Equal(t, NewBucketNotExistErr([]byte("nope")), err)
		return nil
	})
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		require.NoError(t, DeleteBucketValue(tx, testBkt, "str"))
		require.NoError(t, DeleteBucketValue(tx, testBkt, "str"))

		has, err := BucketHasKey(tx, testBkt, "str")
		require.NoError(t, err)
		require.False(t, has)
		return nil
	})
	require.NoError(t, err)
}

func TestSequence(t *testing.T) {
	db, shutdown := testutil.PrepareDB(t)
	defer shutdown()

	err := db.Update(func(tx *bolt.Tx) error {
		require.NoError(t, CreateBuckets(tx, testBkt))

		seq, err := Sequence(tx, testBkt)
		require.NoError(t, err)
		require.Equal(t, uint64(0), seq)

		for i := uint64(1); i <= 3; i++ {
			n, err := NextSequence(tx, testBkt)
			require.NoError(t, err)
			require.Equal(t, i, n)
		}

		seq, err = Sequence(tx, testBkt)
		require.NoError(t, err)
		require.Equal(t, uint64(3), seq)

		_, err = NextSequence(tx, []byte("nope"))
		require.IsType(t, BucketNotExistErr{}, err)
		return nil
	})
	require.NoError(t, err)
}
