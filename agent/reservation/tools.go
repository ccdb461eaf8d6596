package reservation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	toolx "github.com/tanpawarit/reservation-concierge/agent/tool"
)

const (
	ToolList   = "list_reservations"
	ToolAdd    = "add_reservation"
	ToolUpdate = "update_reservation"
	ToolDelete = "delete_existing_reservation"
)

// Result headers. The reservation agent recognises tool output by them.
const (
	HeaderList   = "REZERVASYON KAYITLARI"
	HeaderAdd    = "REZERVASYON EKLEME SONUÇLARI"
	HeaderUpdate = "REZERVASYON GÜNCELLEME SONUÇLARI"
	HeaderDelete = "REZERVASYON SİLME SONUÇLARI"
)

// Markers lists every header phrase a tool result may start with, Turkish
// first then the English equivalents.
var Markers = []string{
	HeaderList,
	HeaderAdd,
	HeaderUpdate,
	HeaderDelete,
	"RESERVATION RECORDS",
	"RESERVATION ADD RESULTS",
	"RESERVATION UPDATE RESULTS",
	"RESERVATION DELETE RESULTS",
}

// Tools exposes a Repository as reservation tools.
type Tools struct {
	repo Repository
}

var _ toolx.Executor = (*Tools)(nil)

func NewTools(repo Repository) *Tools {
	return &Tools{repo: repo}
}

func roomTypeParam(desc string, required bool) *schema.ParameterInfo {
	enum := make([]string, 0, len(RoomRates))
	for _, rate := range RoomRates {
		enum = append(enum, rate.Name)
	}
	return &schema.ParameterInfo{Type: schema.String, Desc: desc, Enum: enum, Required: required}
}

func (t *Tools) ListTools(context.Context) ([]*schema.ToolInfo, error) {
	return []*schema.ToolInfo{
		{
			Name: ToolList,
			Desc: "List existing reservations, optionally for one customer.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_name": {Type: schema.String, Desc: "Full name of the guest"},
				"check_in":      {Type: schema.String, Desc: "Check-in date, YYYY-MM-DD"},
			}),
		},
		{
			Name: ToolAdd,
			Desc: "Create a reservation.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_name": {Type: schema.String, Desc: "Full name of the guest", Required: true},
				"check_in":      {Type: schema.String, Desc: "Check-in date, YYYY-MM-DD", Required: true},
				"check_out":     {Type: schema.String, Desc: "Check-out date, YYYY-MM-DD", Required: true},
				"adults":        {Type: schema.Integer, Desc: "Number of adults", Required: true},
				"children":      {Type: schema.Integer, Desc: "Number of children, default 0"},
				"room_type":     roomTypeParam("Room type", true),
			}),
		},
		{
			Name: ToolUpdate,
			Desc: "Change an existing reservation found by customer name. Pass check_in or room_type when the guest has several.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_name": {Type: schema.String, Desc: "Full name on the reservation", Required: true},
				"check_in":      {Type: schema.String, Desc: "Current check-in date, YYYY-MM-DD"},
				"room_type":     roomTypeParam("Current room type", false),
				"new_check_in":  {Type: schema.String, Desc: "New check-in date, YYYY-MM-DD"},
				"new_check_out": {Type: schema.String, Desc: "New check-out date, YYYY-MM-DD"},
				"new_adults":    {Type: schema.Integer, Desc: "New number of adults"},
				"new_children":  {Type: schema.Integer, Desc: "New number of children"},
				"new_room_type": roomTypeParam("New room type", false),
			}),
		},
		{
			Name: ToolDelete,
			Desc: "Cancel a reservation by customer name. Pass check_in or room_type when the guest has several.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_name": {Type: schema.String, Desc: "Full name on the reservation", Required: true},
				"check_in":      {Type: schema.String, Desc: "Check-in date, YYYY-MM-DD"},
				"room_type":     roomTypeParam("Room type", false),
			}),
		},
	}, nil
}

func (t *Tools) CallTool(ctx context.Context, name string, args map[string]any) (toolx.Result, error) {
	var (
		res toolx.Result
		err error
	)
	switch name {
	case ToolList:
		res, err = t.list(ctx, args)
	case ToolAdd:
		res, err = t.add(ctx, args)
	case ToolUpdate:
		res, err = t.update(ctx, args)
	case ToolDelete:
		res, err = t.delete(ctx, args)
	default:
		return toolx.Errorf(name, "tool=%s is unavailable", name), nil
	}
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("reservation tool failed")
		return toolx.Result{Tool: name, Error: err.Error()}, nil
	}
	return res, nil
}

func (t *Tools) list(ctx context.Context, args map[string]any) (toolx.Result, error) {
	f, err := filterFromArgs(args)
	if err != nil {
		return toolx.Result{}, err
	}
	rows, err := t.repo.List(ctx, f)
	if err != nil {
		return toolx.Result{}, err
	}
	views := make([]View, 0, len(rows))
	for _, r := range rows {
		views = append(views, r.View())
	}
	return render(ToolList, HeaderList, map[string]any{"count": len(views), "reservations": views})
}

func (t *Tools) add(ctx context.Context, args map[string]any) (toolx.Result, error) {
	r := &Reservation{
		CustomerName: argString(args, "customer_name"),
		RoomType:     argString(args, "room_type"),
	}
	var err error
	if r.CheckIn, err = argDate(args, "check_in"); err != nil {
		return toolx.Result{}, err
	}
	if r.CheckOut, err = argDate(args, "check_out"); err != nil {
		return toolx.Result{}, err
	}
	if r.Adults, _, err = argInt(args, "adults"); err != nil {
		return toolx.Result{}, err
	}
	if r.Children, _, err = argInt(args, "children"); err != nil {
		return toolx.Result{}, err
	}
	if err := t.repo.Create(ctx, r); err != nil {
		return toolx.Result{}, err
	}
	return render(ToolAdd, HeaderAdd, map[string]any{"status": "created", "reservation": r.View()})
}

func (t *Tools) update(ctx context.Context, args map[string]any) (toolx.Result, error) {
	current, err := t.findOne(ctx, args)
	if err != nil {
		return toolx.Result{}, err
	}
	next := current
	if d, err := argDate(args, "new_check_in"); err != nil {
		return toolx.Result{}, err
	} else if !d.IsZero() {
		next.CheckIn = d
	}
	if d, err := argDate(args, "new_check_out"); err != nil {
		return toolx.Result{}, err
	} else if !d.IsZero() {
		next.CheckOut = d
	}
	if n, ok, err := argInt(args, "new_adults"); err != nil {
		return toolx.Result{}, err
	} else if ok {
		next.Adults = n
	}
	if n, ok, err := argInt(args, "new_children"); err != nil {
		return toolx.Result{}, err
	} else if ok {
		next.Children = n
	}
	if rt := argString(args, "new_room_type"); rt != "" {
		next.RoomType = rt
	}
	if err := t.repo.Update(ctx, &next); err != nil {
		return toolx.Result{}, err
	}
	return render(ToolUpdate, HeaderUpdate, map[string]any{
		"status":   "updated",
		"previous": current.View(),
		"current":  next.View(),
	})
}

func (t *Tools) delete(ctx context.Context, args map[string]any) (toolx.Result, error) {
	target, err := t.findOne(ctx, args)
	if err != nil {
		return toolx.Result{}, err
	}
	if err := t.repo.Delete(ctx, target.ID); err != nil {
		return toolx.Result{}, err
	}
	return render(ToolDelete, HeaderDelete, map[string]any{"status": "deleted", "reservation": target.View()})
}

// findOne resolves exactly one reservation from customer name plus the
// optional check_in and room_type discriminators.
func (t *Tools) findOne(ctx context.Context, args map[string]any) (Reservation, error) {
	f, err := filterFromArgs(args)
	if err != nil {
		return Reservation{}, err
	}
	if f.CustomerName == "" {
		return Reservation{}, fmt.Errorf("%w: customer_name is required", ErrInvalid)
	}
	rows, err := t.repo.List(ctx, f)
	if err != nil {
		return Reservation{}, err
	}
	switch len(rows) {
	case 0:
		return Reservation{}, fmt.Errorf("%w for %s", ErrNotFound, f.CustomerName)
	case 1:
		return rows[0], nil
	}
	candidates := make([]string, 0, len(rows))
	for _, r := range rows {
		candidates = append(candidates, fmt.Sprintf("%s %s", r.CheckIn.Format(DateLayout), r.RoomType))
	}
	return Reservation{}, fmt.Errorf("%w: %s has %d reservations (%s); ask for the check-in date or room type",
		ErrAmbiguous, f.CustomerName, len(rows), strings.Join(candidates, "; "))
}

func filterFromArgs(args map[string]any) (Filter, error) {
	checkIn, err := argDate(args, "check_in")
	if err != nil {
		return Filter{}, err
	}
	return Filter{
		CustomerName: argString(args, "customer_name"),
		RoomType:     argString(args, "room_type"),
		CheckIn:      checkIn,
	}, nil
}

func render(tool, header string, body any) (toolx.Result, error) {
	raw, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return toolx.Result{}, err
	}
	return toolx.Result{Tool: tool, Content: header + "\n" + string(raw)}, nil
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func argDate(args map[string]any, key string) (time.Time, error) {
	s := argString(args, key)
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", ErrInvalid, key, s)
	}
	return d, nil
}

// argInt accepts JSON numbers and numeric strings. ok reports presence.
func argInt(args map[string]any, key string) (int, bool, error) {
	v, present := args[key]
	if !present || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, true, fmt.Errorf("%w: %s must be a whole number", ErrInvalid, key)
		}
		return int(n), true, nil
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, true, fmt.Errorf("%w: %s must be a whole number", ErrInvalid, key)
		}
		return int(i), true, nil
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, false, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, true, fmt.Errorf("%w: %s must be a whole number", ErrInvalid, key)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("%w: %s must be a whole number", ErrInvalid, key)
	}
}
