package objectstore

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Environment variable names for backend selection.
const (
	envStorageType    = "VIO83_STORAGE_TYPE"
	envLocalPath      = "VIO83_LOCAL_PATH"
	envS3Bucket       = "VIO83_S3_BUCKET"
	envS3Prefix       = "VIO83_S3_PREFIX"
	envS3Region       = "VIO83_S3_REGION"
	envS3Endpoint     = "VIO83_S3_ENDPOINT"
	envAWSKeyID       = "AWS_ACCESS_KEY_ID"
	envAWSSecretKey   = "AWS_SECRET_ACCESS_KEY"
	envGCSBucket      = "VIO83_GCS_BUCKET"
	envGCSPrefix      = "VIO83_GCS_PREFIX"
	envGCSCreds       = "GOOGLE_APPLICATION_CREDENTIALS"
	envAzureContainer = "VIO83_AZURE_CONTAINER"
	envAzurePrefix    = "VIO83_AZURE_PREFIX"
	envAzureConn      = "AZURE_STORAGE_CONNECTION_STRING"
	envDropboxToken   = "VIO83_DROPBOX_TOKEN"
	envDropboxPrefix  = "VIO83_DROPBOX_PREFIX"
	envTiered         = "VIO83_STORAGE_TIERED"
)

var (
	singletonMu sync.Mutex
	singleton   Backend
)

// Settings selects and configures a Backend. The zero value resolves to a
// local backend under ./data/objects. SettingsFromEnv fills it from the
// VIO83_* / provider-native environment variables; callers that configure
// in code populate it directly.
type Settings struct {
	Type      string // "local", "s3", "gcs", "azure", "dropbox"; "" means local
	LocalPath string

	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	GCSBucket string
	GCSPrefix string
	GCSCreds  string

	AzureConnectionString string
	AzureContainer        string
	AzurePrefix           string

	DropboxToken  string
	DropboxPrefix string

	Tiered bool
}

// SettingsFromEnv reads Settings from the environment.
func SettingsFromEnv() Settings {
	tiered, _ := strconv.ParseBool(os.Getenv(envTiered))
	return Settings{
		Type:                  os.Getenv(envStorageType),
		LocalPath:             os.Getenv(envLocalPath),
		S3Bucket:              os.Getenv(envS3Bucket),
		S3Prefix:              os.Getenv(envS3Prefix),
		S3Region:              os.Getenv(envS3Region),
		S3Endpoint:            os.Getenv(envS3Endpoint),
		S3AccessKey:           os.Getenv(envAWSKeyID),
		S3SecretKey:           os.Getenv(envAWSSecretKey),
		GCSBucket:             os.Getenv(envGCSBucket),
		GCSPrefix:             os.Getenv(envGCSPrefix),
		GCSCreds:              os.Getenv(envGCSCreds),
		AzureConnectionString: os.Getenv(envAzureConn),
		AzureContainer:        os.Getenv(envAzureContainer),
		AzurePrefix:           os.Getenv(envAzurePrefix),
		DropboxToken:          os.Getenv(envDropboxToken),
		DropboxPrefix:         os.Getenv(envDropboxPrefix),
		Tiered:                tiered,
	}
}

// Build constructs a Backend from s, dispatching on s.Type.
func Build(s Settings) (Backend, error) {
	storageType := s.Type
	if storageType == "" {
		storageType = "local"
	}

	var backend Backend
	var err error
	switch storageType {
	case "local":
		path := s.LocalPath
		if path == "" {
			path = "./data/objects"
		}
		backend, err = NewLocalBackend(path)
	case "s3":
		backend, err = NewS3Backend(S3Config{
			Endpoint:  s.S3Endpoint,
			Region:    s.S3Region,
			Bucket:    s.S3Bucket,
			AccessKey: s.S3AccessKey,
			SecretKey: s.S3SecretKey,
			UseSSL:    true,
			Prefix:    s.S3Prefix,
		})
	case "gcs":
		backend, err = NewGCSBackend(S3Config{
			Bucket:    s.GCSBucket,
			AccessKey: s.GCSCreds,
			Prefix:    s.GCSPrefix,
		})
	case "azure":
		backend, err = NewAzureBackend(s.AzureConnectionString, s.AzureContainer, s.AzurePrefix)
	case "dropbox":
		backend = NewDropboxBackend(s.DropboxToken, s.DropboxPrefix)
	default:
		return nil, fmt.Errorf("objectstore: unknown storage type %q", storageType)
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: building %s backend: %w", storageType, err)
	}

	if s.Tiered {
		warm, werr := NewLocalBackend(s.LocalPath + "/warm")
		if werr != nil {
			return nil, fmt.Errorf("objectstore: building warm tier: %w", werr)
		}
		backend = NewTiered(backend, warm, backend)
	}

	return backend, nil
}

// FromEnv constructs a Backend from the VIO83_* / provider-native
// environment variables.
func FromEnv() (Backend, error) {
	return Build(SettingsFromEnv())
}

// Default returns the process-wide Backend singleton, building it from
// the environment on first use.
func Default() (Backend, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton != nil {
		return singleton, nil
	}
	backend, err := FromEnv()
	if err != nil {
		return nil, err
	}
	singleton = backend
	return singleton, nil
}

// Reset clears the process-wide singleton so the next Default() call
// rebuilds it from the current environment. Intended for tests.
func Reset() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singleton = nil
}
