package storage

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// testDB runs the shared test suite against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := db.Put([]byte("key1"), []byte("value1")); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		val, err := db.Get([]byte("key1"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("value1")) {
			t.Errorf("Get() = %q, want %q", val, "value1")
		}
	})

	t.Run("GetNonexistent", func(t *testing.T) {
		_, err := db.Get([]byte("nonexistent"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() for missing key = %v, want ErrNotFound", err)
		}
	})

	t.Run("Has", func(t *testing.T) {
		db.Put([]byte("exists"), []byte("yes"))

		ok, err := db.Has([]byte("exists"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if !ok {
			t.Error("Has() = false for existing key")
		}
		ok, err = db.Has([]byte("missing"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if ok {
			t.Error("Has() = true for missing key")
		}
	})

	t.Run("ValueIsCopied", func(t *testing.T) {
		v := []byte("original")
		db.Put([]byte("copy"), v)
		v[0] = 'X'
		got, _ := db.Get([]byte("copy"))
		if !bytes.Equal(got, []byte("original")) {
			t.Errorf("stored value changed with caller slice: %q", got)
		}
	})

	t.Run("ForEachPrefixOrder", func(t *testing.T) {
		for _, i := range []int{3, 1, 2} {
			db.Put([]byte(fmt.Sprintf("sim/%08d", i)), []byte{byte(i)})
		}
		db.Put([]byte("simx"), []byte("other"))

		var got []string
		err := db.ForEach([]byte("sim/"), func(key, value []byte) error {
			got = append(got, string(key))
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		want := []string{"sim/00000001", "sim/00000002", "sim/00000003"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("ForEach() keys = %v, want %v", got, want)
		}
	})

	t.Run("ForEachStops", func(t *testing.T) {
		stop := errors.New("stop")
		calls := 0
		err := db.ForEach([]byte("sim/"), func(key, value []byte) error {
			calls++
			return stop
		})
		if !errors.Is(err, stop) {
			t.Errorf("ForEach() error = %v, want %v", err, stop)
		}
		if calls != 1 {
			t.Errorf("ForEach() called fn %d times after error, want 1", calls)
		}
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}

func TestBadgerInMemory(t *testing.T) {
	db, err := NewBadgerInMemory()
	if err != nil {
		t.Fatalf("NewBadgerInMemory() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}
