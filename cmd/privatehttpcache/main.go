package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/net/http2"

	"github.com/dylandreimerink/privatehttpcache"
	"github.com/dylandreimerink/privatehttpcache/store"
)

//Config is the structure for the configuration file
type Config struct {
	//ListenConfig determines how the http server part of the proxy behaves
	ListenConfig ListenConfig `mapstructure:"listen_config"`

	//CacheConfig determines how the caching part of the proxy behaves
	CacheConfig CacheConfig `mapstructure:"cache_config"`

	//StorageConfig determines where cache entries are stored
	StorageConfig StorageConfig `mapstructure:"storage_config"`

	//LogLevel is the logrus level name used for logging
	LogLevel string `mapstructure:"log_level"`
}

type ListenConfig struct {
	//ListenAddress is the address on which the proxy listens for http connections
	ListenAddress string `mapstructure:"address"`

	//EnableHTTP2 if true we will attempt to make HTTP2 connections to origin servers
	EnableHTTP2 bool `mapstructure:"http2"`
}

type CacheConfig struct {
	//CacheableMethods is a list of request methods for which responses may be cached
	CacheableMethods []string `mapstructure:"cacheable_methods"`

	//InvalidatingMethods is a list of unsafe methods which remove the stored
	// entry for their URL when the origin indicates success
	InvalidatingMethods []string `mapstructure:"invalidating_methods"`

	//CacheETags governs whether entity tags participate in revalidation
	CacheETags bool `mapstructure:"cache_etags"`
}

type StorageConfig struct {
	//Backend selects the storage backend: memory, file, file-separate-body or sqlite
	Backend string `mapstructure:"backend"`

	//Directory is the root directory of the file backends
	Directory string `mapstructure:"directory"`

	//DatabaseFile is the SQLite database file, empty means in-memory
	DatabaseFile string `mapstructure:"database_file"`

	//TTL is the eviction time of the memory backend, zero keeps entries forever
	TTL string `mapstructure:"ttl"`

	//Capacity is the entry capacity of the memory backend, zero means unbounded
	Capacity uint64 `mapstructure:"capacity"`
}

func (conf *CacheConfig) toRealCacheConfig() *privatehttpcache.CacheConfig {
	for index, method := range conf.CacheableMethods {
		conf.CacheableMethods[index] = strings.ToUpper(method)
	}

	for index, method := range conf.InvalidatingMethods {
		conf.InvalidatingMethods[index] = strings.ToUpper(method)
	}

	cacheConfig := privatehttpcache.NewCacheConfig()
	cacheConfig.CacheableMethods = conf.CacheableMethods
	cacheConfig.InvalidatingMethods = conf.InvalidatingMethods
	cacheConfig.CacheETags = conf.CacheETags

	return cacheConfig
}

func (conf *StorageConfig) toBackend() (store.Cache, error) {
	switch conf.Backend {
	case "", "memory":
		ttl := time.Duration(0)
		if conf.TTL != "" {
			parsed, err := time.ParseDuration(conf.TTL)
			if err != nil {
				return nil, fmt.Errorf("unable to parse storage ttl: %w", err)
			}
			ttl = parsed
		}

		return store.NewTTLCache(ttl, conf.Capacity), nil

	case "file":
		return store.NewFileCache(conf.Directory), nil

	case "file-separate-body":
		return store.NewSeparateBodyFileCache(conf.Directory), nil

	case "sqlite":
		return store.NewSQLiteCache(conf.DatabaseFile)

	default:
		return nil, fmt.Errorf("unknown storage backend: '%s'", conf.Backend)
	}
}

func init() {
	viper.SetDefault("listen_config.address", ":8080")
	viper.SetDefault("listen_config.http2", false)

	viper.SetDefault("cache_config.cacheable_methods", []string{http.MethodGet})
	viper.SetDefault("cache_config.invalidating_methods", []string{http.MethodPut, http.MethodPatch, http.MethodDelete})
	viper.SetDefault("cache_config.cache_etags", true)

	viper.SetDefault("storage_config.backend", "memory")
	viper.SetDefault("storage_config.directory", "cache")

	viper.SetDefault("log_level", "info")
}

var config Config

func main() {
	logger := logrus.New()

	if err := initConfig(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error while reading config: %s\n", err.Error())
		os.Exit(1)
	}

	if err := viper.Unmarshal(&config); err != nil {
		fmt.Fprintf(os.Stderr, "Error while unmarshalling config: %s\n", err.Error())
		os.Exit(1)
	}

	logLevel, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}
	logger.SetLevel(logLevel)

	backend, err := config.StorageConfig.toBackend()
	if err != nil {
		logger.WithError(err).Fatal("Unable to create storage backend")
	}

	originTransport := &http.Transport{
		DisableCompression: true,
	}

	if config.ListenConfig.EnableHTTP2 {
		if err := http2.ConfigureTransport(originTransport); err != nil {
			logger.WithError(err).Fatal("Unable to enable HTTP2 on the origin transport")
		}
	}

	transport := &privatehttpcache.Transport{
		Transport: originTransport,
		Controller: &privatehttpcache.CacheController{
			Cache:  backend,
			Config: config.CacheConfig.toRealCacheConfig(),
			Logger: logger,
		},
	}

	proxy := &CachingProxy{
		Client: transport.Client(),
		Logger: logger,
	}

	logger.WithField("address", config.ListenConfig.ListenAddress).Info("Starting caching proxy")

	server := &http.Server{
		Addr:    config.ListenConfig.ListenAddress,
		Handler: proxy,
	}

	if err := server.ListenAndServe(); err != nil {
		logger.WithError(err).Fatal("Server exited")
	}
}

func initConfig(args []string) error {
	flagSet := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)

	flagSet.String("config", "", "The path to the privatehttpcache config file")

	//Make it so that when the -help, --help or -h flag is given the usage is printed and the program exits
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flagSet.PrintDefaults()
		os.Exit(0)
	}

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	configPath, err := flagSet.GetString("config")
	if err != nil {
		return err
	}

	//Without a config file the defaults apply
	if configPath == "" {
		return nil
	}

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configPath)

	return viper.ReadInConfig()
}
