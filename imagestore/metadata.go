package imagestore

import (
	"os"

	"github.com/rwcarlsen/goexif/exif"
)

// TakenAt extracts the EXIF capture timestamp from an image file. Best
// effort: returns nil when the file has no readable EXIF block, since phone
// screenshots and processed images routinely strip it.
func TakenAt(path string) *int64 {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	exifData, err := exif.Decode(f)
	if err != nil {
		return nil
	}

	takenTime, err := exifData.DateTime()
	if err != nil {
		return nil
	}
	ts := takenTime.Unix()
	return &ts
}
