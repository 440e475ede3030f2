package config

type Config struct {
	BaseURL  string
	HttpPort int
	Db       struct {
		Dsn         string
		Automigrate bool
	}
	RedisServer string
	Jwt         struct {
		SecretKey string
	}
	Notifications struct {
		Email string
	}
	Smtp struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Gateway struct {
		BaseURL      string
		ClientID     string
		ClientSecret string
		CertFile     string
		KeyFile      string
		CAFile       string
	}
	KafkaServers string
}
