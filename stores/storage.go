package stores

import (
	"os"

	"github.com/sirupsen/logrus"

	"designdeck/core"
	"designdeck/stores/filesystem"
	"designdeck/stores/memory"
	"designdeck/stores/s3"
	"designdeck/stores/sqlite"
)

// GetStore selects the design store backend from the STORAGE_TYPE
// environment variable. In-memory is the default.
func GetStore() core.DesignStore {
	storageType := os.Getenv("STORAGE_TYPE")
	var store core.DesignStore

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		storageField["basePath"] = basePath
		store = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "designdeck.db"
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = bucketName
		store = s3.NewStore(bucketName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
