package model

import "time"

// User is a principal of this service: someone whose block/mute lists we
// manage. The four token bucket columns persist the user's outbound
// mutation quota; they are only ever mutated through a bucket withdrawal.
type User struct {
	ID            int64      `db:"id" json:"id"`
	Username      string     `db:"username" json:"username"`
	AccountID     *int64     `db:"account_id" json:"accountId,omitempty"`
	RemoteEnabled bool       `db:"remote_enabled" json:"remoteEnabled"`
	APITokenHash  *string    `db:"api_token_hash" json:"-"`
	AccessToken   *string    `db:"access_token" json:"-"`
	AccessSecret  *string    `db:"access_secret" json:"-"`
	BucketRate    float64    `db:"bucket_rate" json:"-"`
	BucketMax     float64    `db:"bucket_max" json:"-"`
	BucketTime    float64    `db:"bucket_time" json:"-"`
	BucketValue   float64    `db:"bucket_value" json:"-"`
	LastLogin     *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// HasCredentials reports whether the user still holds remote API
// credentials. Credentials are scrubbed for idle users with nothing
// scheduled.
func (u *User) HasCredentials() bool {
	return u.AccessToken != nil && u.AccessSecret != nil
}
