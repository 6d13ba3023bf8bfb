// Package authsession keeps a single account signed in to a Firebase-style
// identity provider.
//
// A Manager exchanges an email and password for a short-lived access token and
// a long-lived refresh token, schedules a refresh shortly before the access
// token expires, persists the session so it survives restarts, and publishes
// every token change to subscribers.
//
// # Architecture
//
// Manager: the state machine. It moves between unauthenticated,
// authenticating, authenticated and refreshing. Every login and logout bumps a
// generation counter; results of network calls that started under an older
// generation are dropped.
//
// Scheduler: at most one pending refresh timer. Re-arming cancels the previous
// timer. The delay is the token lifetime minus five minutes, never less than
// thirty seconds.
//
// Store: where the session record (fb_idToken, fb_refreshToken,
// fb_tokenExpiry) lives between runs. A partial or unparsable record counts as
// absent.
//
// IdentityProvider: the two provider calls. HTTPProvider speaks the
// signInWithPassword and securetoken wire formats.
//
// # Basic Usage
//
//	import (
//	    "github.com/panyam/authsession"
//	    "github.com/panyam/authsession/stores/fs"
//	)
//
//	store, _ := fs.NewFileStore("", "myapp")
//	provider := authsession.NewHTTPProvider(apiKey)
//	mgr := authsession.NewManager("service@example.com", provider, store)
//	defer mgr.Close()
//
//	mgr.Restore(ctx)
//	if !mgr.IsAuthenticated() {
//	    if err := mgr.Login(ctx, password); errors.Is(err, authsession.ErrRateLimited) {
//	        // back off
//	    }
//	}
//
// Attach the token to data store requests only:
//
//	client := mgr.HTTPClient("https://myapp-default-rtdb.firebaseio.com")
//	resp, _ := client.Get("https://myapp-default-rtdb.firebaseio.com/deliverers.json")
//
// # Stores
//
// MemoryStore keeps nothing across restarts. The stores subpackages persist the
// record to a file (stores/fs), an scs session (stores/scs), a SQL database
// through GORM (stores/gorm) or Cloud Datastore (stores/gae).
//
// # gRPC
//
// The grpc subpackage attaches the token to calls bound for allow-listed
// targets and reads it back on the server side.
package authsession
