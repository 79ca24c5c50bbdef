// Package channel implements the three gateway-kind send contracts: SMTP,
// HTTPS REST, and arbitrary external-program invocation.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"alarm-gateway/internal/gateway"
	"alarm-gateway/internal/payload"
	"alarm-gateway/internal/timez"
	domainerrors "alarm-gateway/pkg/errors"
	"alarm-gateway/pkg/pagination"
)

// namedID is one vendor lookup result: a user-visible name paired with its
// opaque integer ID.
type namedID struct {
	Name string
	ID   int
}

// VendorLookup resolves a page of user-visible names to opaque integer IDs
// for one auxiliary category (labels, units, users, scenarios, templates).
type VendorLookup func(ctx context.Context, category string, page, pageSize int) (names map[string]int, total int, err error)

// RestConfig is a REST gateway login's resolved configuration.
type RestConfig struct {
	Endpoint       string
	APIToken       string
	OrganizationID string
	Timeout        time.Duration
	Zone           *timez.Zone
}

// RestSender implements gateway.Sender for the HTTPS REST alarm service at
// https://<host>/api/v1/alarm.
type RestSender struct {
	cfg    RestConfig
	client *http.Client
	lookup VendorLookup
	cache  map[string]map[string]int
}

func NewRestSender(cfg RestConfig, lookup VendorLookup) *RestSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RestSender{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		lookup: lookup,
		cache:  make(map[string]map[string]int),
	}
}

var _ gateway.Sender = (*RestSender)(nil)

// resolveIDs maps every name in names to its opaque vendor ID via paginated
// lookups, caching per category for the lifetime of the sender.
func (s *RestSender) resolveIDs(ctx context.Context, category string, names []string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}
	byName, ok := s.cache[category]
	if !ok {
		fetch := func(page, pageSize int) ([]namedID, int, error) {
			m, total, err := s.lookup(ctx, category, page, pageSize)
			if err != nil {
				return nil, 0, err
			}
			items := make([]namedID, 0, len(m))
			for name, id := range m {
				items = append(items, namedID{Name: name, ID: id})
			}
			return items, total, nil
		}
		all, err := pagination.FetchAll(pagination.DefaultPageSize, fetch)
		if err != nil {
			return nil, domainerrors.NewFatalSend(fmt.Sprintf("resolving %s via vendor lookup", category), err)
		}
		byName = make(map[string]int, len(all))
		for _, item := range all {
			byName[item.Name] = item.ID
		}
		s.cache[category] = byName
	}

	var ids []int
	var missing []string
	for _, n := range names {
		if id, ok := byName[n]; ok {
			ids = append(ids, id)
		} else {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return nil, domainerrors.NewFatalSend(fmt.Sprintf("unresolved %s names: %v", category, missing), nil)
	}
	return ids, nil
}

type individualResource struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// alarmResources is the explicit resource-set shape used when the payload
// has no alarm-template reference to stand in for it.
type alarmResources struct {
	AllUsers    bool                 `json:"allUsers,omitempty"`
	Labels      map[string]int       `json:"labels,omitempty"` // label name -> headcount
	UnitIDs     []int                `json:"unitIds,omitempty"`
	ScenarioIDs []int                `json:"scenarioIds,omitempty"`
	Individuals []individualResource `json:"individuals,omitempty"`
}

type restRequestBody struct {
	OrganizationID          string          `json:"organizationID"`
	StartTime               string          `json:"startTime"`
	EventName               string          `json:"eventName"`
	AlarmResourceTemplateID int             `json:"alarmResourceTemplateID,omitempty"`
	AlarmResources          *alarmResources `json:"alarmResources,omitempty"`
	Message                 string          `json:"message,omitempty"`
	AlarmTemplateID         int             `json:"alarmTemplateID,omitempty"`
	ScheduledEndTime        string          `json:"scheduledEndTime,omitempty"`
}

// resolveResources resolves rest.Target's names into the alarmResources
// wire shape, via the label/unit/scenario paginated vendor lookups.
func (s *RestSender) resolveResources(ctx context.Context, t payload.RestTarget) (*alarmResources, error) {
	out := &alarmResources{AllUsers: t.AllUsers}
	if len(t.Labels) > 0 {
		names := make([]string, 0, len(t.Labels))
		for n := range t.Labels {
			names = append(names, n)
		}
		if _, err := s.resolveIDs(ctx, "labels", names); err != nil {
			return nil, err
		}
		out.Labels = t.Labels
	}
	if len(t.Units) > 0 {
		ids, err := s.resolveIDs(ctx, "units", t.Units)
		if err != nil {
			return nil, err
		}
		out.UnitIDs = ids
	}
	if len(t.Scenarios) > 0 {
		ids, err := s.resolveIDs(ctx, "scenarios", t.Scenarios)
		if err != nil {
			return nil, err
		}
		out.ScenarioIDs = ids
	}
	for _, ind := range t.Individuals {
		out.Individuals = append(out.Individuals, individualResource{First: ind.First, Last: ind.Last})
	}
	return out, nil
}

func (s *RestSender) buildBody(ctx context.Context, msg gateway.Message, rest *payload.Rest) (restRequestBody, error) {
	zone := s.cfg.Zone
	if zone == nil {
		zone = timez.Default
	}
	body := restRequestBody{
		OrganizationID: s.cfg.OrganizationID,
		StartTime:      msg.EventTime.UTC().Format("2006-01-02T15:04:05Z"),
		EventName:      msg.Code,
		Message:        rest.MessageText,
	}

	if rest.AlarmTemplateRef != "" {
		ids, err := s.resolveIDs(ctx, "templates", []string{rest.AlarmTemplateRef})
		if err != nil {
			return restRequestBody{}, err
		}
		body.AlarmResourceTemplateID = ids[0]
	} else {
		resources, err := s.resolveResources(ctx, rest.Target)
		if err != nil {
			return restRequestBody{}, err
		}
		body.AlarmResources = resources
	}

	if rest.MessageTemplateRef != "" {
		ids, err := s.resolveIDs(ctx, "templates", []string{rest.MessageTemplateRef})
		if err != nil {
			return restRequestBody{}, err
		}
		body.AlarmTemplateID = ids[0]
	}

	if rest.HasOpenDuration() {
		end := msg.EventTime.Add(time.Duration(rest.EventOpenHours * float64(time.Hour)))
		body.ScheduledEndTime = end.UTC().Format("2006-01-02T15:04:05Z")
	}
	return body, nil
}

// Send implements gateway.Sender. The inner payload of an Infoalarm is
// unwrapped first; Send itself only accepts a concrete *payload.Rest.
func (s *RestSender) Send(ctx context.Context, msg gateway.Message) error {
	rest, ok := unwrapRest(msg.Payload)
	if !ok {
		return domainerrors.NewFatalSend("rest sender received a non-rest payload", nil)
	}

	body, err := s.buildBody(ctx, msg, rest)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return domainerrors.NewFatalSend("marshalling rest request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return domainerrors.NewFatalSend("building rest request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-Token", s.cfg.APIToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return domainerrors.NewFatalSend(fmt.Sprintf("rest alarm service responded HTTP %d: %s", resp.StatusCode, string(respBody)), nil)
	}
	return nil
}

// classifyTransportError distinguishes host-not-found (retry, non-fatal)
// from every other transport failure (connection refused, timeout, TLS,
// ...), which gets no retry.
func classifyTransportError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return domainerrors.NewNonFatalSend("rest host not found", err)
	}
	return domainerrors.NewFatalSend("rest request failed", err)
}

func unwrapRest(p payload.Payload) (*payload.Rest, bool) {
	switch v := p.(type) {
	case *payload.Rest:
		return v, true
	case *payload.Infoalarm:
		return unwrapRest(v.Inner)
	default:
		return nil, false
	}
}
