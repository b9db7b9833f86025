package earthengine

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"landcover-pipeline/internal/aoi"
	"landcover-pipeline/internal/common"
)

// Image is the metadata of one image in the collection
type Image struct {
	// Name is the full asset name
	// (projects/earthengine-public/assets/GOOGLE/DYNAMICWORLD/V1/...)
	Name string `json:"name"`

	// ID is the asset ID within the catalog
	ID string `json:"id"`

	// StartTime is the acquisition timestamp
	StartTime time.Time `json:"startTime"`
}

// SystemIndex returns the image's system index, the last path segment
// of the asset name, used for raw export file naming
func (im Image) SystemIndex() string {
	idx := strings.LastIndex(im.Name, "/")
	if idx < 0 {
		return im.Name
	}
	return im.Name[idx+1:]
}

// Day returns the acquisition day truncated to UTC
func (im Image) Day() time.Time {
	return common.TruncateToDay(im.StartTime)
}

type listImagesResponse struct {
	Images        []Image `json:"images"`
	NextPageToken string  `json:"nextPageToken"`
}

// ListImages returns the metadata of every Dynamic World image whose
// footprint intersects the AOI and whose acquisition time falls in
// [start, end] (end is inclusive: the filter extends to the end of that
// day). Results are ordered by acquisition time.
func (c *Client) ListImages(ctx context.Context, area *aoi.AOI, start, end time.Time) ([]Image, error) {
	region, err := area.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode AOI region: %w", err)
	}

	path := fmt.Sprintf("/%s/assets/%s:listImages", CatalogProject, common.CollectionID)

	var images []Image
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("startTime", common.TruncateToDay(start).Format(time.RFC3339))
		query.Set("endTime", common.TruncateToDay(end).AddDate(0, 0, 1).Format(time.RFC3339))
		query.Set("region", string(region))
		query.Set("pageSize", strconv.Itoa(500))
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		data, err := c.get(ctx, path, query)
		if err != nil {
			return nil, fmt.Errorf("listImages failed: %w", err)
		}

		var resp listImagesResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse listImages response: %w", err)
		}
		images = append(images, resp.Images...)

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	c.log.Debug("listed collection images",
		"collection", common.CollectionID,
		"start", common.FormatISO8601(start),
		"end", common.FormatISO8601(end),
		"count", len(images))
	return images, nil
}
