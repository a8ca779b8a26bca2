package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App   AppConfig
	DB    DBConfig
	JWT   JWTConfig
	HTTP  HTTPConfig
	SEFAZ SEFAZConfig
	NFCe  NFCeConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN connection string de PostgreSQL; la contraseña va URL-encoded.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SEFAZConfig emisión y comunicación con la SEFAZ.
type SEFAZConfig struct {
	Environment   string // tpAmb: "1" producción, "2" homologación
	UF            string
	DefaultModel  string // "55" o "65"
	DefaultSeries int
	Timeout       time.Duration
	CABundlePath  string // PEM con la cadena ICP-Brasil
	CertPath      string // .pfx/.p12 cargado al iniciar (opcional)
	CertPassword  string

	// URLs que reemplazan las del autorizador normal (SEFAZ_URL_*).
	AuthorizationURL string
	EventURL         string
	InutilizationURL string
	StatusURL        string
	ProtocolURL      string

	ContingencyMode string // OFFLINE, SVC_AN, SVC_RS
	ProbeInterval   time.Duration
	MaxAttempts     int
	DrainPause      time.Duration
}

// NFCeConfig CSC y URLs de la NFC-e.
type NFCeConfig struct {
	CSCID      string
	CSCToken   string
	QRCodeURL  string
	ConsultURL string
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, SEFAZ_UF, NFCE_CSC_ID, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "fiscal-api"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "fiscal"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
			MaxConns:    getInt(v, "DB_MAX_CONNS", 10),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "fiscal-api"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		SEFAZ: SEFAZConfig{
			Environment:      getString(v, "SEFAZ_ENVIRONMENT", "2"),
			UF:               strings.ToUpper(getString(v, "SEFAZ_UF", "SP")),
			DefaultModel:     getString(v, "SEFAZ_MODEL", "65"),
			DefaultSeries:    getInt(v, "SEFAZ_SERIES", 1),
			Timeout:          getSeconds(v, "SEFAZ_TIMEOUT_SECONDS", 30),
			CABundlePath:     getString(v, "SEFAZ_CA_BUNDLE", ""),
			CertPath:         getString(v, "SEFAZ_CERT_PATH", ""),
			CertPassword:     getString(v, "SEFAZ_CERT_PASSWORD", ""),
			AuthorizationURL: getString(v, "SEFAZ_URL_AUTHORIZATION", ""),
			EventURL:         getString(v, "SEFAZ_URL_EVENT", ""),
			InutilizationURL: getString(v, "SEFAZ_URL_INUTILIZATION", ""),
			StatusURL:        getString(v, "SEFAZ_URL_STATUS", ""),
			ProtocolURL:      getString(v, "SEFAZ_URL_PROTOCOL", ""),
			ContingencyMode:  strings.ToUpper(getString(v, "SEFAZ_CONTINGENCY_MODE", "OFFLINE")),
			ProbeInterval:    getSeconds(v, "SEFAZ_PROBE_INTERVAL_SECONDS", 60),
			MaxAttempts:      getInt(v, "SEFAZ_MAX_ATTEMPTS", 5),
			DrainPause:       time.Duration(getInt(v, "SEFAZ_DRAIN_PAUSE_MS", 500)) * time.Millisecond,
		},
		NFCe: NFCeConfig{
			CSCID:      getString(v, "NFCE_CSC_ID", ""),
			CSCToken:   getString(v, "NFCE_CSC_TOKEN", ""),
			QRCodeURL:  getString(v, "NFCE_QR_URL", ""),
			ConsultURL: getString(v, "NFCE_CONSULT_URL", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SEFAZ.Environment {
	case "1", "2":
	default:
		return fmt.Errorf("config: SEFAZ_ENVIRONMENT debe ser 1 o 2, no %q", c.SEFAZ.Environment)
	}
	switch c.SEFAZ.DefaultModel {
	case "55", "65":
	default:
		return fmt.Errorf("config: SEFAZ_MODEL debe ser 55 o 65, no %q", c.SEFAZ.DefaultModel)
	}
	switch c.SEFAZ.ContingencyMode {
	case "OFFLINE", "SVC_AN", "SVC_RS":
	default:
		return fmt.Errorf("config: SEFAZ_CONTINGENCY_MODE %q desconocido", c.SEFAZ.ContingencyMode)
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getSeconds(v *viper.Viper, key string, def int) time.Duration {
	return time.Duration(getInt(v, key, def)) * time.Second
}
