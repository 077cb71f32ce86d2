package features

import (
	"strings"
	"time"

	"snapforecast/internal/domain"
)

// OtherCode is the encoding of any category or platform outside the fixed vocabularies.
const OtherCode = 0

var categoryCodes = map[string]int{
	"gaming":    1,
	"defi":      2,
	"nft":       3,
	"meme":      4,
	"education": 5,
	"trading":   6,
	"social":    7,
}

var platformCodes = map[string]int{
	"cookie.fun":    1,
	"kaito":         2,
	"yaps.kaito.ai": 2,
	"galxe":         3,
	"zealy":         4,
}

// CategoryCode encodes a campaign category; unknown values map to OtherCode.
func CategoryCode(category string) int {
	return categoryCodes[strings.ToLower(strings.TrimSpace(category))]
}

// PlatformCode encodes a platform; unknown values map to OtherCode.
func PlatformCode(platform string) int {
	return platformCodes[domain.NormalizePlatform(platform)]
}

func campaignFeatures(c domain.CampaignContext, platform string) *Vector {
	v := NewVector()
	if platform == "" {
		platform = c.Platform
	}
	v.Set("campaign_reward_pool", c.RewardPool)
	v.Set("campaign_competition_level", c.CompetitionLevel)
	v.Set("campaign_category_code", float64(CategoryCode(c.Category)))
	v.Set("platform_code", float64(PlatformCode(platform)))
	return v
}

// primeHours are UTC hours with peak crypto-social activity.
var primeHours = map[int]bool{9: true, 12: true, 13: true, 17: true, 18: true, 19: true, 20: true, 21: true}

func temporalFeatures(now time.Time) *Vector {
	v := NewVector()
	now = now.UTC()
	weekday := now.Weekday()
	v.Set("hour_of_day", float64(now.Hour()))
	// Monday = 0 ... Sunday = 6
	v.Set("day_of_week", float64((int(weekday)+6)%7))
	v.SetBool("is_weekend", weekday == time.Saturday || weekday == time.Sunday)
	v.SetBool("is_prime_time", primeHours[now.Hour()])
	return v
}
