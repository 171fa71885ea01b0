package google

// Scopes requested at consent time. The calendar scope covers every gateway
// operation; openid/email/profile make the provider return an id_token that
// carries the user's email.
var Scopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/calendar",
}
