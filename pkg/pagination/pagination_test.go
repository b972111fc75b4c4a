package pagination

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{At: time.Date(2026, 1, 2, 3, 4, 5, 6789, time.UTC), ID: uuid.New()}
	out, err := Decode("created_at", Encode("created_at", in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.At.Equal(in.At) || out.ID != in.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if c, err := Decode("created_at", "  "); c != nil || err != nil {
		t.Fatalf("empty cursor should be nil, got %v %v", c, err)
	}
	valid := Cursor{At: time.Now(), ID: uuid.New()}
	bad := map[string]string{
		"not base64":      "!!!",
		"not json":        "bm9waXBl",
		"other listing":   Encode("updated_at", valid),
		"zero position":   Encode("created_at", Cursor{}),
		"truncated token": Encode("created_at", valid)[:6],
	}
	for name, value := range bad {
		if _, err := Decode("created_at", value); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("%s: expected ErrInvalidCursor, got %v", name, err)
		}
	}
}

func TestNormalizeLimit(t *testing.T) {
	if NormalizeLimit(0) != DefaultLimit || NormalizeLimit(500) != MaxLimit || NormalizeLimit(7) != 7 {
		t.Fatalf("unexpected normalization")
	}
}

type row struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func rowKey(r row) Cursor { return Cursor{At: r.CreatedAt, ID: r.ID} }

func TestKeysetWalksEveryRowOnce(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&row{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		// two rows share each timestamp so the id tiebreak is exercised
		if err := conn.Create(&row{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Minute)}).Error; err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	seen := map[uuid.UUID]bool{}
	params := Params{Limit: 2}
	pages := 0
	for {
		page, err := Keyset(conn.Model(&row{}), "created_at", params, rowKey)
		if err != nil {
			t.Fatalf("page %d: %v", pages, err)
		}
		pages++
		for _, r := range page.Items {
			if seen[r.ID] {
				t.Fatalf("row %s returned twice", r.ID)
			}
			seen[r.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		params.Cursor = page.NextCursor
	}
	if len(seen) != 5 || pages != 3 {
		t.Fatalf("expected 5 rows over 3 pages, got %d rows over %d pages", len(seen), pages)
	}

	if _, err := Keyset(conn.Model(&row{}), "created_at", Params{Cursor: "%%%"}, rowKey); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("expected invalid cursor, got %v", err)
	}
}
