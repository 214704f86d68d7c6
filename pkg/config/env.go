package config

const (
	EnvPrefix = "TITHE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv           = "TITHE_APP_ENV"
	EnvPort             = "TITHE_APP_PORT"
	EnvDBDSN            = "TITHE_DB_DSN"
	EnvDBHost           = "TITHE_DB_HOST"
	EnvDBUser           = "TITHE_DB_USER"
	EnvDBName           = "TITHE_DB_NAME"
	EnvRedisURL         = "TITHE_REDIS_URL"
	EnvJWTSecret        = "TITHE_JWT_SECRET"
	EnvJWTIssuer        = "TITHE_JWT_ISSUER"
	EnvMinAmountMinor   = "TITHE_MIN_AMOUNT_MINOR"
	EnvInitiateAttempts = "TITHE_PROVIDER_INITIATE_ATTEMPTS"
	EnvMpesaSecret      = "TITHE_WEBHOOK_MPESA_SECRET"
	EnvSweepPendingTTL  = "TITHE_SWEEP_PENDING_TTL"
)

var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
