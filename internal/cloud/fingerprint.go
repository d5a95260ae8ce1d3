package cloud

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"

	"github.com/rowjay/pkgcache/internal/storage"
)

// Fingerprint identifies one observed version of a remote archive. It hashes
// the local staging path with the object's size and modification time, so a
// content change that keeps both is not detected.
func Fingerprint(localPath string, info storage.ObjectInfo) string {
	return fingerprint(localPath, info, false)
}

func fingerprint(localPath string, info storage.ObjectInfo, withETag bool) string {
	material := localPath + "|" + strconv.FormatInt(info.Size, 10) + "|" + strconv.FormatInt(info.Modified.Unix(), 10)
	if withETag && info.ETag != "" {
		material += "|" + info.ETag
	}
	sum := md5.Sum([]byte(material))
	return hex.EncodeToString(sum[:])
}

// CacheKey is the metadata cache key for slug at fingerprint fp.
func CacheKey(slug, fp string) string {
	return "metadata-b64-" + slug + "-" + fp
}
