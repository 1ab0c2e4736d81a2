package models

// ChannelProfile is a user's public profile with subscription counts.
type ChannelProfile struct {
	ID                  int64  `json:"id"`
	Username            string `json:"username"`
	FullName            string `json:"fullName"`
	Email               string `json:"email"`
	Avatar              string `json:"avatar"`
	CoverImage          string `json:"coverImage"`
	SubscribersCount    int64  `json:"subscribersCount"`
	ChannelSubscribedTo int64  `json:"channelSubscribedTo"`
	IsSubscribed        bool   `json:"isSubscribed"`
}
