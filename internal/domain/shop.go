package domain

import "time"

type Shop struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	TypeID    int64     `json:"typeId"`
	Images    string    `json:"images,omitempty"`
	Area      string    `json:"area,omitempty"`
	Address   string    `json:"address"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	AvgPrice  int64     `json:"avgPrice"`
	Sold      int       `json:"sold"`
	Comments  int       `json:"comments"`
	Score     int       `json:"score"`
	OpenHours string    `json:"openHours,omitempty"`
	CreatedAt time.Time `json:"createTime"`
	UpdatedAt time.Time `json:"updateTime"`
}

type ShopType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Sort int    `json:"sort"`
}

// ShopChanged is published by writers of the shop table so that every
// instance drops or refreshes its cached copy.
type ShopChanged struct {
	ShopID int64 `json:"shopId"`
}
