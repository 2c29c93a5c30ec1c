package policy

import (
	"sort"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// Category groups hard-blocked apps for display.
type Category string

const (
	CategorySocial    Category = "social"
	CategoryVideo     Category = "video"
	CategoryMessaging Category = "messaging"
	CategoryCommunity Category = "community"
)

// CatalogEntry describes one built-in app.
type CatalogEntry struct {
	ID       domain.AppID
	Name     string
	Category Category
}

// defaultHardBlocked lists known attention sinks.
var defaultHardBlocked = []CatalogEntry{
	{"com.facebook.katana", "Facebook", CategorySocial},
	{"com.facebook.orca", "Messenger", CategoryMessaging},
	{"com.facebook.lite", "Facebook Lite", CategorySocial},
	{"com.instagram.android", "Instagram", CategorySocial},
	{"com.instagram.lite", "Instagram Lite", CategorySocial},
	{"com.instagram.barcelona", "Threads", CategorySocial},
	{"com.google.android.youtube", "YouTube", CategoryVideo},
	{"com.google.android.apps.youtube.music", "YouTube Music", CategoryVideo},
	{"com.ss.android.ugc.trill", "TikTok", CategoryVideo},
	{"com.zhiliaoapp.musically", "TikTok", CategoryVideo},
	{"com.ss.android.ugc.aweme", "Douyin", CategoryVideo},
	{"tv.twitch.android.app", "Twitch", CategoryVideo},
	{"com.caffeine.app", "Caffeine", CategoryVideo},
	{"org.telegram.messenger", "Telegram", CategoryMessaging},
	{"org.telegram.messenger.web", "Telegram X", CategoryMessaging},
	{"com.snapchat.android", "Snapchat", CategoryMessaging},
	{"jp.naver.line.android", "LINE", CategoryMessaging},
	{"com.kakao.talk", "KakaoTalk", CategoryMessaging},
	{"com.viber.voip", "Viber", CategoryMessaging},
	{"com.imo.android.imoim", "imo", CategoryMessaging},
	{"com.tencent.mobileqq", "QQ", CategoryMessaging},
	{"com.tencent.mm", "WeChat", CategoryMessaging},
	{"com.zing.zalo", "Zalo", CategoryMessaging},
	{"com.discord", "Discord", CategoryCommunity},
	{"com.twitter.android", "X", CategorySocial},
	{"com.twitter.android.lite", "X Lite", CategorySocial},
	{"com.bluesky.app.android", "Bluesky", CategorySocial},
	{"org.joinmastodon.android", "Mastodon", CategorySocial},
	{"com.reddit.frontpage", "Reddit", CategoryCommunity},
	{"com.pinterest", "Pinterest", CategorySocial},
	{"com.linkedin.android", "LinkedIn", CategorySocial},
	{"com.linkedin.android.lite", "LinkedIn Lite", CategorySocial},
	{"com.quora.android", "Quora", CategoryCommunity},
	{"com.sina.weibo", "Weibo", CategorySocial},
	{"com.baidu.tieba", "Baidu Tieba", CategoryCommunity},
	{"com.vkontakte.android", "VK", CategorySocial},
	{"ru.ok.android", "OK", CategorySocial},
	{"com.bereal.ft", "BeReal", CategorySocial},
	{"com.lemon8.android", "Lemon8", CategorySocial},
	{"com.nextdoor", "Nextdoor", CategoryCommunity},
}

// defaultAlwaysAllowed overrides the hard-block list.
var defaultAlwaysAllowed = []domain.AppID{
	"com.whatsapp",
	"com.whatsapp.w4b",
}

// Catalog holds the built-in hard-block list and its override list.
// It is the in-memory policy store; there is no persisted state here.
type Catalog struct {
	entries       map[domain.AppID]CatalogEntry
	alwaysAllowed domain.AllowSet
}

// NewCatalog creates a catalog with the built-in lists.
func NewCatalog() *Catalog {
	return NewCatalogWith(defaultHardBlocked, defaultAlwaysAllowed)
}

// NewCatalogWith creates a catalog with custom lists (for testing and config overrides).
func NewCatalogWith(hardBlocked []CatalogEntry, alwaysAllowed []domain.AppID) *Catalog {
	c := &Catalog{
		entries:       make(map[domain.AppID]CatalogEntry, len(hardBlocked)),
		alwaysAllowed: domain.NewAllowSet(alwaysAllowed...),
	}
	for _, e := range hardBlocked {
		c.Register(e)
	}
	return c
}

// Register adds an entry to the hard-block list.
func (c *Catalog) Register(e CatalogEntry) {
	if e.Name == "" {
		e.Name = string(e.ID)
	}
	c.entries[e.ID] = e
}

// Allow adds an id to the override list.
func (c *Catalog) Allow(app domain.AppID) {
	c.alwaysAllowed.Add(app)
}

// IsHardBlocked reports catalog membership after applying the override list.
func (c *Catalog) IsHardBlocked(app domain.AppID) bool {
	if c.alwaysAllowed.Contains(app) {
		return false
	}
	_, ok := c.entries[app]
	return ok
}

// IsAlwaysAllowed reports whether the app is on the override list.
func (c *Catalog) IsAlwaysAllowed(app domain.AppID) bool {
	return c.alwaysAllowed.Contains(app)
}

// Get returns the catalog entry for an app.
func (c *Catalog) Get(app domain.AppID) (CatalogEntry, bool) {
	e, ok := c.entries[app]
	return e, ok
}

// Entries returns hard-blocked entries sorted by id.
func (c *Catalog) Entries() []CatalogEntry {
	result := make([]CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if c.alwaysAllowed.Contains(e.ID) {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// AlwaysAllowed returns the override list.
func (c *Catalog) AlwaysAllowed() []domain.AppID {
	return c.alwaysAllowed.Sorted()
}
