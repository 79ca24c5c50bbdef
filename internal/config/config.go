// Package config loads the gateway's routing database, login database, and
// ambient settings from a YAML file via viper, the external loader standing
// in for the XML schema-validating parser the core treats as out of scope.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"alarm-gateway/internal/login"
	"alarm-gateway/internal/payload"
	"alarm-gateway/internal/routing"
	"alarm-gateway/internal/timez"
	"alarm-gateway/internal/validity"
	domainerrors "alarm-gateway/pkg/errors"
	"alarm-gateway/pkg/validator"
)

// AudioConfig mirrors the audio section of the configuration schema.
type AudioConfig struct {
	DriverName              string `mapstructure:"driver_name"`
	DeviceName              string `mapstructure:"device_name"`
	VoiceCaptureSeconds     int    `mapstructure:"voice_capture_seconds"`
	MinDetectionDistSeconds int    `mapstructure:"min_detection_dist_seconds"`
	PlayTone                bool   `mapstructure:"play_tone"`
	AudioFormatID           string `mapstructure:"audio_format_id"`
}

// RetryPolicyConfig is the YAML shape of a login's retry policy.
type RetryPolicyConfig struct {
	MaxAttempts              int `mapstructure:"max_attempts" validate:"min=1"`
	RetryDelaySeconds        int `mapstructure:"retry_delay_seconds" validate:"min=0"`
	MaxConcurrentConnections int `mapstructure:"max_concurrent_connections" validate:"min=1"`
}

// EmailLoginConfig is the YAML shape of the SMTP gateway login.
type EmailLoginConfig struct {
	Host        string            `mapstructure:"host" validate:"required"`
	Port        int               `mapstructure:"port" validate:"required"`
	Username    string            `mapstructure:"username"`
	Password    string            `mapstructure:"password"`
	FromAddress string            `mapstructure:"from_address" validate:"required,email"`
	Transport   string            `mapstructure:"transport" validate:"omitempty,oneof=plain starttls implicit_tls"`
	AuthMode    string            `mapstructure:"auth_mode" validate:"omitempty,oneof=none login cram"`
	Retry       RetryPolicyConfig `mapstructure:"retry"`
}

// RestLoginConfig is the YAML shape of the REST gateway login.
type RestLoginConfig struct {
	Endpoint       string            `mapstructure:"endpoint" validate:"required,url"`
	APIToken       string            `mapstructure:"api_token" validate:"required"`
	OrganizationID string            `mapstructure:"organization_id" validate:"required"`
	Retry          RetryPolicyConfig `mapstructure:"retry"`
}

// ExternalLoginConfig is the YAML shape of the external-program gateway
// login; it carries no credentials, only a retry policy.
type ExternalLoginConfig struct {
	Retry RetryPolicyConfig `mapstructure:"retry"`
}

// LoginsConfig groups the three gateway-kind login sections.
type LoginsConfig struct {
	Email    *EmailLoginConfig    `mapstructure:"email"`
	Rest     *RestLoginConfig     `mapstructure:"rest"`
	External *ExternalLoginConfig `mapstructure:"external"`
}

// PayloadConfig is the YAML shape of one payload variant entry; exactly one
// of its "kind"-specific fields set is expected, selected by Kind.
type PayloadConfig struct {
	Kind string `mapstructure:"kind" validate:"required,oneof=email rest external infoalarm"`

	// email
	SiteID             string             `mapstructure:"site_id"`
	AlarmID            string             `mapstructure:"alarm_id"`
	Recipients         []RecipientConfig  `mapstructure:"recipients"`
	Body               string             `mapstructure:"body"`
	DeliverImmediately bool               `mapstructure:"deliver_immediately"`

	// rest
	AlarmTemplateRef   string            `mapstructure:"alarm_template_ref"`
	Target             RestTargetConfig  `mapstructure:"target"`
	MessageText        string            `mapstructure:"message_text"`
	MessageTemplateRef string            `mapstructure:"message_template_ref"`
	EventOpenHours     float64           `mapstructure:"event_open_hours"`

	// external
	Command string `mapstructure:"command"`
	Args    string `mapstructure:"args"`

	// infoalarm
	Inner    *PayloadConfig  `mapstructure:"inner"`
	Siblings []PayloadConfig `mapstructure:"siblings"`
}

type RecipientConfig struct {
	DisplayName string `mapstructure:"display_name"`
	Address     string `mapstructure:"address" validate:"required,email"`
}

type RestTargetConfig struct {
	AllUsers    bool                `mapstructure:"all_users"`
	Labels      map[string]int      `mapstructure:"labels"`
	Units       []string            `mapstructure:"units"`
	Scenarios   []string            `mapstructure:"scenarios"`
	Individuals []IndividualConfig  `mapstructure:"individuals"`
}

type IndividualConfig struct {
	First string `mapstructure:"first"`
	Last  string `mapstructure:"last"`
}

// ClockConfig is an (hour, minute, second) triple used by exception windows.
type ClockConfig struct {
	Hour   int `mapstructure:"hour"`
	Minute int `mapstructure:"minute"`
	Second int `mapstructure:"second"`
}

// DateTimeConfig is an absolute local calendar instant.
type DateTimeConfig struct {
	Year   int `mapstructure:"year"`
	Month  int `mapstructure:"month"`
	Day    int `mapstructure:"day"`
	Hour   int `mapstructure:"hour"`
	Minute int `mapstructure:"minute"`
	Second int `mapstructure:"second"`
}

// ExceptionConfig is one weeklyException/monthlyException/singleTimeException
// entry; exactly one of its three variant fields is set.
type ExceptionConfig struct {
	Weekly     *WeeklyExceptionConfig     `mapstructure:"weekly"`
	Monthly    *MonthlyExceptionConfig    `mapstructure:"monthly"`
	SingleTime *SingleTimeExceptionConfig `mapstructure:"single_time"`
	Payloads   []PayloadConfig            `mapstructure:"alarms"`
}

type WeeklyExceptionConfig struct {
	Weeks   []int       `mapstructure:"weeks"` // 1-5, 5 meaning "last"
	Weekday int         `mapstructure:"weekday"` // 0=Sunday .. 6=Saturday
	Begin   ClockConfig `mapstructure:"begin"`
	End     ClockConfig `mapstructure:"end"`
}

type MonthlyExceptionConfig struct {
	Day    int         `mapstructure:"day"`
	Months []int       `mapstructure:"months"` // 1-12
	Begin  ClockConfig `mapstructure:"begin"`
	End    ClockConfig `mapstructure:"end"`
}

type SingleTimeExceptionConfig struct {
	Begin DateTimeConfig `mapstructure:"begin"`
	End   DateTimeConfig `mapstructure:"end"`
}

// AlarmValiditiesConfig is one `alarms.{code|all|fallback}` entry: a
// mandatory default payload list plus zero or more exceptions.
type AlarmValiditiesConfig struct {
	Code       string            `mapstructure:"call"`
	Default    []PayloadConfig   `mapstructure:"default" validate:"required,min=1"`
	Exceptions []ExceptionConfig `mapstructure:"exceptions"`
}

// ServerConfig is the control-plane HTTP listener's address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AuthConfig describes the single operator account and JWT signing
// parameters for the control plane (spec.md §4M); PasswordHash must already
// be a bcrypt hash (see internal/auth.HashPassword), never a plaintext
// password.
type AuthConfig struct {
	Username             string `mapstructure:"username"`
	PasswordHash         string `mapstructure:"password_hash"`
	JWTSecret            string `mapstructure:"jwt_secret"`
	JWTExpirationSeconds int    `mapstructure:"jwt_expiration_seconds"`
}

// DatabaseConfig is the optional Postgres audit-history connection; an
// empty Host disables internal/history entirely.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// LoggingConfig names the dedicated alarm-event log file (internal/logging).
type LoggingConfig struct {
	FilePath string `mapstructure:"file_path"`
}

// DSN renders the postgres connection string internal/history.Connect
// expects, matching the teacher's repository.NewDatabase connection-string
// assembly. An empty Host yields an empty DSN, which disables history.
func (d DatabaseConfig) DSN() string {
	if d.Host == "" {
		return ""
	}
	sslmode := defaultString(d.SSLMode, "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// RootConfig is the full decoded YAML document.
type RootConfig struct {
	Audio    AudioConfig             `mapstructure:"audio"`
	Protocol struct {
		Default bool `mapstructure:"default"`
	} `mapstructure:"protocol"`
	Server   ServerConfig            `mapstructure:"server"`
	Auth     AuthConfig              `mapstructure:"auth"`
	Database DatabaseConfig          `mapstructure:"database"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Logins   LoginsConfig            `mapstructure:"logins"`
	Codes    []AlarmValiditiesConfig `mapstructure:"codes" validate:"dive"`
	All      *AlarmValiditiesConfig  `mapstructure:"all"`
	Fallback *AlarmValiditiesConfig  `mapstructure:"fallback"`
}

// Loaded is the fully materialised result of loading the configuration: a
// routing database and a login database, ready to hand to
// gateway.GatewaysManager.
type Loaded struct {
	Messages     *routing.AlarmMessageDatabase
	Logins       *login.Database
	Audio        AudioConfig
	LogEveryCode bool
	Server       ServerConfig
	Auth         AuthConfig
	Database     DatabaseConfig
	Logging      LoggingConfig
}

// Load reads config.yaml (search paths ".", "./config", "/etc/alarm-gateway"),
// with environment-variable overrides, validates its structure, and builds
// the routing and login databases the core consumes.
func Load(zone *timez.Zone) (*Loaded, error) {
	if zone == nil {
		zone = timez.Default
	}
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/alarm-gateway")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.ReadInConfig(); err != nil {
		return nil, domainerrors.NewConfigError("reading configuration file", err)
	}

	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return nil, domainerrors.NewConfigError("decoding configuration file", err)
	}
	if err := validator.Struct(root); err != nil {
		return nil, domainerrors.NewConfigError("validating configuration file", err)
	}

	loginDB, err := buildLoginDB(root.Logins)
	if err != nil {
		return nil, err
	}
	messagesDB, err := buildMessagesDB(root, zone)
	if err != nil {
		return nil, err
	}

	return &Loaded{
		Messages:     messagesDB,
		Logins:       loginDB,
		Audio:        root.Audio,
		LogEveryCode: root.Protocol.Default,
		Server:       root.Server,
		Auth:         root.Auth,
		Database:     root.Database,
		Logging:      root.Logging,
	}, nil
}

func buildLoginDB(cfg LoginsConfig) (*login.Database, error) {
	db := login.NewDatabase()
	if cfg.Email != nil {
		l := login.Login{
			Credentials: login.Credentials{
				Kind:        payload.KindEmail,
				Host:        cfg.Email.Host,
				Port:        cfg.Email.Port,
				Username:    cfg.Email.Username,
				Password:    cfg.Email.Password,
				FromAddress: cfg.Email.FromAddress,
				Transport:   login.SMTPTransport(defaultString(cfg.Email.Transport, string(login.SMTPStartTLS))),
				AuthMode:    login.SMTPAuthMode(defaultString(cfg.Email.AuthMode, string(login.SMTPAuthNone))),
			},
			Retry: toRetryPolicy(cfg.Email.Retry),
		}
		if err := db.Set(payload.KindEmail, l); err != nil {
			return nil, err
		}
	}
	if cfg.Rest != nil {
		l := login.Login{
			Credentials: login.Credentials{
				Kind:           payload.KindRest,
				Endpoint:       cfg.Rest.Endpoint,
				APIToken:       cfg.Rest.APIToken,
				OrganizationID: cfg.Rest.OrganizationID,
			},
			Retry: toRetryPolicy(cfg.Rest.Retry),
		}
		if err := db.Set(payload.KindRest, l); err != nil {
			return nil, err
		}
	}
	if cfg.External != nil {
		l := login.Login{
			Credentials: login.Credentials{Kind: payload.KindExternal},
			Retry:       toRetryPolicy(cfg.External.Retry),
		}
		if err := db.Set(payload.KindExternal, l); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func toRetryPolicy(c RetryPolicyConfig) login.RetryPolicy {
	return login.RetryPolicy{
		MaxAttempts:              c.MaxAttempts,
		RetryDelaySeconds:        c.RetryDelaySeconds,
		MaxConcurrentConnections: c.MaxConcurrentConnections,
	}
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func buildMessagesDB(root RootConfig, zone *timez.Zone) (*routing.AlarmMessageDatabase, error) {
	db := routing.NewAlarmMessageDatabase()

	for _, codeCfg := range root.Codes {
		av, err := buildAlarmValidities(codeCfg, zone, false)
		if err != nil {
			return nil, err
		}
		if err := db.AddCode(codeCfg.Code, av); err != nil {
			return nil, err
		}
	}
	if root.All != nil {
		av, err := buildAlarmValidities(*root.All, zone, true)
		if err != nil {
			return nil, err
		}
		if err := db.ReplaceForAllCodes(av); err != nil {
			return nil, err
		}
	}
	if root.Fallback != nil {
		av, err := buildAlarmValidities(*root.Fallback, zone, false)
		if err != nil {
			return nil, err
		}
		if err := db.ReplaceFallback(av); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// buildAlarmValidities decodes one AlarmValiditiesConfig into a
// routing.AlarmValidities, rejecting infoalarm payloads unless
// allowInfoalarm (true only for the "all" group), matching the rule that a
// validating parser must reject infoalarm tags outside the all group.
func buildAlarmValidities(cfg AlarmValiditiesConfig, zone *timez.Zone, allowInfoalarm bool) (*routing.AlarmValidities, error) {
	av := routing.NewAlarmValidities()

	defaultPayloads, err := buildPayloads(cfg.Default, allowInfoalarm)
	if err != nil {
		return nil, err
	}
	if err := av.Add(validity.NewDefault(), defaultPayloads); err != nil {
		return nil, err
	}

	for _, exc := range cfg.Exceptions {
		pred, err := buildPredicate(exc, zone)
		if err != nil {
			return nil, err
		}
		payloads, err := buildPayloads(exc.Payloads, allowInfoalarm)
		if err != nil {
			return nil, err
		}
		if err := av.Add(pred, payloads); err != nil {
			return nil, err
		}
	}
	return av, nil
}

func buildPredicate(exc ExceptionConfig, zone *timez.Zone) (validity.Predicate, error) {
	switch {
	case exc.Weekly != nil:
		weeks := make([]validity.WeekOrdinal, len(exc.Weekly.Weeks))
		for i, w := range exc.Weekly.Weeks {
			weeks[i] = validity.WeekOrdinal(w)
		}
		return validity.NewWeekly(zone, weeks, time.Weekday(exc.Weekly.Weekday),
			exc.Weekly.Begin.Hour, exc.Weekly.Begin.Minute, exc.Weekly.Begin.Second,
			exc.Weekly.End.Hour, exc.Weekly.End.Minute, exc.Weekly.End.Second)
	case exc.Monthly != nil:
		months := make([]time.Month, len(exc.Monthly.Months))
		for i, m := range exc.Monthly.Months {
			months[i] = time.Month(m)
		}
		return validity.NewMonthly(zone, exc.Monthly.Day, months,
			exc.Monthly.Begin.Hour, exc.Monthly.Begin.Minute, exc.Monthly.Begin.Second,
			exc.Monthly.End.Hour, exc.Monthly.End.Minute, exc.Monthly.End.Second)
	case exc.SingleTime != nil:
		b, e := exc.SingleTime.Begin, exc.SingleTime.End
		return validity.NewSingleTime(zone,
			b.Year, b.Month, b.Day, b.Hour, b.Minute, b.Second,
			e.Year, e.Month, e.Day, e.Hour, e.Minute, e.Second)
	default:
		return nil, domainerrors.NewConfigError("exception entry declares no weekly/monthly/single_time variant", nil)
	}
}

func buildPayloads(cfgs []PayloadConfig, allowInfoalarm bool) ([]payload.Payload, error) {
	out := make([]payload.Payload, 0, len(cfgs))
	for _, c := range cfgs {
		p, err := buildPayload(c, allowInfoalarm)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func buildPayload(c PayloadConfig, allowInfoalarm bool) (payload.Payload, error) {
	switch c.Kind {
	case "email":
		recipients := make([]payload.Recipient, len(c.Recipients))
		for i, r := range c.Recipients {
			recipients[i] = payload.Recipient{DisplayName: r.DisplayName, Address: r.Address}
		}
		return payload.NewEmail(c.SiteID, c.AlarmID, recipients, c.Body, c.DeliverImmediately), nil
	case "rest":
		target := payload.RestTarget{
			AllUsers:  c.Target.AllUsers,
			Labels:    c.Target.Labels,
			Units:     c.Target.Units,
			Scenarios: c.Target.Scenarios,
		}
		for _, ind := range c.Target.Individuals {
			target.Individuals = append(target.Individuals, payload.Individual{First: ind.First, Last: ind.Last})
		}
		return payload.NewRest(c.AlarmTemplateRef, target, c.MessageText, c.MessageTemplateRef, c.EventOpenHours)
	case "external":
		return payload.NewExternal(c.Command, c.Args), nil
	case "infoalarm":
		if !allowInfoalarm {
			return nil, domainerrors.NewConfigError("infoalarm payloads are permitted only inside the all-codes group", nil)
		}
		if c.Inner == nil {
			return nil, domainerrors.NewConfigError("infoalarm entry requires an inner payload", nil)
		}
		inner, err := buildPayload(*c.Inner, allowInfoalarm)
		if err != nil {
			return nil, err
		}
		siblings, err := buildPayloads(c.Siblings, allowInfoalarm)
		if err != nil {
			return nil, err
		}
		return payload.NewInfoalarm(inner, siblings)
	default:
		return nil, domainerrors.NewConfigError(fmt.Sprintf("unknown payload kind %q", c.Kind), nil)
	}
}
