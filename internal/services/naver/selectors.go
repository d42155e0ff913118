package naver

// Selectors holds every markup hook the automation depends on. The place
// dashboard ships CSS-module class names that change between builds, so
// they all live here and nowhere else.
type Selectors struct {
	// Review list
	Item         string
	AuthorClass  string
	DateClass    string
	ContentClass string
	MoreClass    string
	ReplyClass   string

	// Dashboard
	PlaceLink string

	// Popups dismissed after navigation, tried in order
	Popups []string

	// Reply form
	ReplyButtonLabels []string
	ReplyEditor       string
	SubmitLabel       string

	// Error banners inspected after submit
	ErrorBanners []string
}

// DefaultSelectors matches the dashboard markup as of the current build
var DefaultSelectors = Selectors{
	Item:         "li",
	AuthorClass:  "pui__JiVbY3",
	DateClass:    "pui__m7nkds",
	ContentClass: "pui__vn15t2",
	MoreClass:    "pui__wFzIYl",
	ReplyClass:   "pui__GbW8H7",

	PlaceLink: `a[href*="/bizes/place/"]`,

	Popups: []string{
		"button.Modal_btn_confirm__uQZFR",
		"button[class*='confirm']",
		"button[class*='close']",
		".dimmed button",
		"[class*='modal'] button",
	},

	ReplyButtonLabels: []string{"답글", "답글 쓰기", "답글달기"},
	ReplyEditor:       "textarea",
	SubmitLabel:       "등록",

	ErrorBanners: []string{
		"[role='alert']",
		".alert-error",
		".error-message",
		"[class*='toast'][class*='error']",
		"[class*='notification'][class*='error']",
	},
}

func (s Selectors) class(name string) string {
	return "." + name
}
