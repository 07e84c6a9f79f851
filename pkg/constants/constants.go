package constants

// Database table names
const (
	TABLE_CONFIGS        = "configs"
	TABLE_SIP_TRUNKS     = "sip_trunks"
	TABLE_DISPATCH_RULES = "dispatch_rules"
	TABLE_CALL_RECORDS   = "call_records"
)

// Site config keys
const (
	KEY_SITE_URL         = "site_url"
	KEY_SITE_NAME        = "site_name"
	KEY_SITE_LOGO_URL    = "site_logo_url"
	KEY_SITE_DESCRIPTION = "site_description"
)

// Room name prefix for bridged calls
const ROOM_PREFIX = "call-"

// Supported session languages
const (
	LANG_GERMAN  = "de"
	LANG_ENGLISH = "en"
)
