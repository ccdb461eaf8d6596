package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

// Filter keeps the tools named in allow, preserving order. An empty allow list
// keeps everything.
func Filter(infos []*schema.ToolInfo, allow []string) []*schema.ToolInfo {
	if len(allow) == 0 {
		return infos
	}
	allowed := make(map[string]struct{}, len(allow))
	for _, name := range allow {
		allowed[strings.TrimSpace(name)] = struct{}{}
	}
	out := make([]*schema.ToolInfo, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		if _, ok := allowed[info.Name]; ok {
			out = append(out, info)
		}
	}
	return out
}

func Lookup(infos []*schema.ToolInfo, name string) (*schema.ToolInfo, bool) {
	for _, info := range infos {
		if info != nil && info.Name == name {
			return info, true
		}
	}
	return nil, false
}

// Required returns the required parameter names of a tool, sorted.
func Required(info *schema.ToolInfo) []string {
	if info == nil || info.ParamsOneOf == nil {
		return nil
	}
	s, err := info.ParamsOneOf.ToOpenAPIV3()
	if err != nil || s == nil {
		return nil
	}
	out := append([]string(nil), s.Required...)
	sort.Strings(out)
	return out
}

// Describe renders "- name: description" lines for prompts.
func Describe(infos []*schema.ToolInfo) string {
	if len(infos) == 0 {
		return "(no tools available)"
	}
	var b strings.Builder
	for _, info := range infos {
		if info == nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s", info.Name, strings.TrimSpace(info.Desc))
		if req := Required(info); len(req) > 0 {
			fmt.Fprintf(&b, " (required: %s)", strings.Join(req, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Router dispatches calls to the first executor that lists the tool. Unknown
// tools come back as error results.
type Router struct {
	executors []Executor

	mu     sync.Mutex
	routes map[string]Executor
	infos  []*schema.ToolInfo
}

var _ Executor = (*Router)(nil)

func NewRouter(executors ...Executor) *Router {
	out := make([]Executor, 0, len(executors))
	for _, e := range executors {
		if e != nil {
			out = append(out, e)
		}
	}
	return &Router{executors: out}
}

func (r *Router) ListTools(ctx context.Context) ([]*schema.ToolInfo, error) {
	_, infos, err := r.resolve(ctx)
	return infos, err
}

func (r *Router) CallTool(ctx context.Context, name string, args map[string]any) (Result, error) {
	routes, _, err := r.resolve(ctx)
	if err != nil {
		return Result{}, err
	}
	e, ok := routes[name]
	if !ok {
		return Errorf(name, "tool=%s is unavailable", name), nil
	}
	return e.CallTool(ctx, name, args)
}

// resolve lists every executor's tools. An executor that fails to list is
// skipped; the listing is cached only once every executor has answered, so a
// recovered executor is picked up on a later call.
func (r *Router) resolve(ctx context.Context) (map[string]Executor, []*schema.ToolInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.routes != nil {
		return r.routes, r.infos, nil
	}
	routes := make(map[string]Executor)
	var (
		infos []*schema.ToolInfo
		errs  []error
	)
	for i, e := range r.executors {
		listed, err := e.ListTools(ctx)
		if err != nil {
			log.Warn().Err(err).Int("executor", i).Msg("skipping tool executor that failed to list tools")
			errs = append(errs, err)
			continue
		}
		for _, info := range listed {
			if info == nil {
				continue
			}
			if _, dup := routes[info.Name]; dup {
				continue
			}
			routes[info.Name] = e
			infos = append(infos, info)
		}
	}
	if len(errs) > 0 && len(errs) == len(r.executors) {
		return nil, nil, fmt.Errorf("list tools: %w", errors.Join(errs...))
	}
	if len(errs) == 0 {
		r.routes = routes
		r.infos = infos
	}
	return routes, infos, nil
}
