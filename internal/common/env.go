package common

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config application config, read from the environment (docker-compose style)
type Config struct {
	AppEnv   string // environment (production, development)
	HTTPAddr string // listen address of the api server
	KeyPath  string // tls key file path
	CertPath string // tls cert file path

	DBDriver    string // mysql, postgres or sqlite
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBPath      string // sqlite file
	DBWaitTries int    // connection attempts before giving up at startup

	LogPath  string // empty logs to stderr
	LogLevel string

	RobotRoot     string   // root of the robot-tests checkout
	RunnerCommand []string // command that runs the suite
	ArtifactsRoot string   // one directory per executor call
	ConfigDir     string   // environment yaml files
	TestsDir      string   // .robot files
	ResourcesDir  string   // .resource files

	ExecutorMode    string // local, docker or remote
	DockerImage     string
	ExecutorRPCAddr string
	ExecutorTimeout time.Duration // 0 means no timeout

	MaxConcurrentRuns int // 0 means unbounded
	SchedulerTick     time.Duration
	Timezone          string
}

var config Config

func GetConfig() Config {
	return config
}

func InitConf() {
	config = LoadConfig()
}

// LoadConfig reads the config from the environment, applying defaults.
func LoadConfig() Config {
	robotRoot := getEnv("ROBOT_ROOT", "./robot-tests")

	return Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		KeyPath:  getEnv("KEY_PATH", ""),
		CertPath: getEnv("CERT_PATH", ""),

		DBDriver:    getEnv("DB_DRIVER", "mysql"),
		DBHost:      getEnv("DB_HOST", "localhost"), // mysql service name inside compose
		DBPort:      getEnvInt("DB_PORT", 0), // 0 picks the driver default
		DBUser:      getEnv("DB_USER", ""),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "taf"),
		DBPath:      getEnv("DB_PATH", "./taf.db"),
		DBWaitTries: getEnvInt("DB_WAIT_TRIES", 30),

		LogPath:  getEnv("LOG_PATH", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RobotRoot:     robotRoot,
		RunnerCommand: strings.Fields(getEnv("RUNNER_COMMAND", "python "+filepath.Join(robotRoot, "runner", "run_tests.py"))),
		ArtifactsRoot: getEnv("ARTIFACTS_ROOT", filepath.Join(robotRoot, "artifacts", "robot", "runs")),
		ConfigDir:     getEnv("CONFIG_DIR", filepath.Join(robotRoot, "config")),
		TestsDir:      getEnv("TESTS_DIR", filepath.Join(robotRoot, "tests")),
		ResourcesDir:  getEnv("RESOURCES_DIR", filepath.Join(robotRoot, "resources")),

		ExecutorMode:    getEnv("EXECUTOR_MODE", "local"),
		DockerImage:     getEnv("DOCKER_IMAGE", "robot-tests:latest"),
		ExecutorRPCAddr: getEnv("EXECUTOR_RPC_ADDR", "localhost:8081"),
		ExecutorTimeout: getEnvDuration("EXECUTOR_TIMEOUT", 0),

		MaxConcurrentRuns: getEnvInt("MAX_CONCURRENT_RUNS", 0),
		SchedulerTick:     getEnvDuration("SCHEDULER_TICK", time.Second),
		Timezone:          getEnv("TZ", "Local"),
	}
}

// Location resolves the configured timezone, falling back to local time.
func (c Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
