package reservation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const DateLayout = "2006-01-02"

var (
	ErrNotFound  = errors.New("reservation not found")
	ErrAmbiguous = errors.New("more than one reservation matches")
	ErrInvalid   = errors.New("invalid reservation")
)

// Reservation is one booked stay.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations,alias:r"`

	ID           string    `bun:"id,pk" json:"-"`
	CustomerName string    `bun:"customer_name,notnull" json:"customer_name"`
	RoomType     string    `bun:"room_type,notnull" json:"room_type"`
	CheckIn      time.Time `bun:"check_in,notnull,type:date" json:"-"`
	CheckOut     time.Time `bun:"check_out,notnull,type:date" json:"-"`
	Adults       int       `bun:"adults,notnull" json:"adults"`
	Children     int       `bun:"children,notnull,default:0" json:"children"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"-"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"-"`
}

// Nights is the number of nights between check-in and check-out.
func (r Reservation) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// RoomRate is one bookable room type and its nightly price in TRY.
type RoomRate struct {
	Name         string
	NightlyPrice int
}

var RoomRates = []RoomRate{
	{Name: "Standard", NightlyPrice: 1000},
	{Name: "Deluxe", NightlyPrice: 1500},
	{Name: "Suite", NightlyPrice: 2500},
}

// CanonicalRoomType maps a case-insensitive room type to its catalog name.
func CanonicalRoomType(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, rate := range RoomRates {
		if strings.EqualFold(rate.Name, raw) {
			return rate.Name, true
		}
	}
	return "", false
}

func nightlyPrice(roomType string) int {
	for _, rate := range RoomRates {
		if rate.Name == roomType {
			return rate.NightlyPrice
		}
	}
	return 0
}

// placeholder guest names a model tends to invent
var genericNames = map[string]bool{
	"yeni müşteri": true,
	"müşteri":      true,
	"misafir":      true,
	"new customer": true,
	"customer":     true,
	"guest":        true,
}

// Validate normalizes and checks a reservation before it is written.
func (r *Reservation) Validate() error {
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	if r.CustomerName == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalid)
	}
	if genericNames[strings.ToLower(r.CustomerName)] {
		return fmt.Errorf("%w: a real customer name is required, got %q", ErrInvalid, r.CustomerName)
	}
	roomType, ok := CanonicalRoomType(r.RoomType)
	if !ok {
		return fmt.Errorf("%w: unknown room type %q", ErrInvalid, r.RoomType)
	}
	r.RoomType = roomType
	if r.CheckIn.IsZero() || r.CheckOut.IsZero() {
		return fmt.Errorf("%w: check-in and check-out dates are required", ErrInvalid)
	}
	if !r.CheckOut.After(r.CheckIn) {
		return fmt.Errorf("%w: check-out must be after check-in", ErrInvalid)
	}
	if r.Adults < 1 {
		return fmt.Errorf("%w: at least one adult is required", ErrInvalid)
	}
	if r.Children < 0 {
		return fmt.Errorf("%w: children cannot be negative", ErrInvalid)
	}
	return nil
}

// Filter narrows a listing. Zero fields match everything.
type Filter struct {
	CustomerName string
	RoomType     string
	CheckIn      time.Time
}

func (f Filter) Matches(r Reservation) bool {
	if f.CustomerName != "" && !strings.EqualFold(strings.TrimSpace(f.CustomerName), r.CustomerName) {
		return false
	}
	if f.RoomType != "" && !strings.EqualFold(strings.TrimSpace(f.RoomType), r.RoomType) {
		return false
	}
	if !f.CheckIn.IsZero() && !sameDay(f.CheckIn, r.CheckIn) {
		return false
	}
	return true
}

func sameDay(a, b time.Time) bool {
	return a.Format(DateLayout) == b.Format(DateLayout)
}

// View is the guest-facing projection; it never carries the internal id.
type View struct {
	CustomerName string `json:"customer_name"`
	RoomType     string `json:"room_type"`
	CheckIn      string `json:"check_in"`
	CheckOut     string `json:"check_out"`
	Nights       int    `json:"nights"`
	Adults       int    `json:"adults"`
	Children     int    `json:"children"`
	TotalPrice   int    `json:"total_price_try"`
}

func (r Reservation) View() View {
	return View{
		CustomerName: r.CustomerName,
		RoomType:     r.RoomType,
		CheckIn:      r.CheckIn.Format(DateLayout),
		CheckOut:     r.CheckOut.Format(DateLayout),
		Nights:       r.Nights(),
		Adults:       r.Adults,
		Children:     r.Children,
		TotalPrice:   r.Nights() * nightlyPrice(r.RoomType),
	}
}
