package client

import (
	"bytes"
	"encoding/json"
)

var jsonNull = []byte("null")

// Ref is a relation the API sends either as a bare id or, when the request
// asked for it to be embedded, wrapped as {"data": {...}}. Embeds that point at
// nothing arrive as {"data": []}.
type Ref[T any] struct {
	Id   string
	Data *T
}

func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.Id)
	}
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	embedded := bytes.TrimSpace(wrapper.Data)
	if len(embedded) == 0 || embedded[0] == '[' || bytes.Equal(embedded, jsonNull) {
		return nil
	}
	value := new(T)
	if err := json.Unmarshal(embedded, value); err != nil {
		return err
	}
	r.Data = value
	return nil
}

// DataList is the {"data": [...]} envelope used for embedded collections.
type DataList[T any] struct {
	Data []T `json:"data"`
}

type Link struct {
	Rel string `json:"rel"`
	Uri string `json:"uri"`
}

type Pagination struct {
	Offset int    `json:"offset"`
	Max    int    `json:"max"`
	Size   int    `json:"size"`
	Links  []Link `json:"links"`
}

func (p Pagination) NextLink() string {
	for _, link := range p.Links {
		if link.Rel == "next" {
			return link.Uri
		}
	}
	return ""
}

type PagedResponse struct {
	Data       []json.RawMessage `json:"data"`
	Pagination Pagination        `json:"pagination"`
}

type Names struct {
	International string  `json:"international"`
	Japanese      *string `json:"japanese,omitempty"`
}

type Variable struct {
	Id            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category,omitempty"`
	IsSubcategory bool   `json:"is-subcategory"`
}

type Level struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	Weblink string `json:"weblink"`
}

type Game struct {
	Id           string             `json:"id"`
	Names        Names              `json:"names"`
	Abbreviation string             `json:"abbreviation"`
	Weblink      string             `json:"weblink"`
	Gametypes    []string           `json:"gametypes"`
	Levels       DataList[Level]    `json:"levels"`
	Variables    DataList[Variable] `json:"variables"`
}

// SubcategoryIds returns the ids of the variables that split the game's leaderboards.
func (g *Game) SubcategoryIds() map[string]bool {
	ids := make(map[string]bool)
	for _, variable := range g.Variables.Data {
		if variable.IsSubcategory {
			ids[variable.Id] = true
		}
	}
	return ids
}

type RunTimes struct {
	PrimaryT float64 `json:"primary_t"`
}

type RunPlayer struct {
	Rel  string `json:"rel"`
	Id   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type RunSystem struct {
	Platform string  `json:"platform"`
	Emulated bool    `json:"emulated"`
	Region   *string `json:"region,omitempty"`
}

type RunVideos struct {
	Links []Link `json:"links"`
}

type RunStatus struct {
	Status string `json:"status"`
}

type Run struct {
	Id        string            `json:"id"`
	Weblink   string            `json:"weblink"`
	Game      Ref[Game]         `json:"game"`
	Level     Ref[Level]        `json:"level"`
	Category  string            `json:"category"`
	Videos    *RunVideos        `json:"videos,omitempty"`
	Status    RunStatus         `json:"status"`
	Players   []RunPlayer       `json:"players"`
	Date      *string           `json:"date,omitempty"`
	Submitted *string           `json:"submitted,omitempty"`
	Times     RunTimes          `json:"times"`
	System    RunSystem         `json:"system"`
	Values    map[string]string `json:"values"`
}

func (r *Run) GameId() string {
	if r.Game.Data != nil {
		return r.Game.Data.Id
	}
	return r.Game.Id
}

func (r *Run) LevelId() string {
	if r.Level.Data != nil {
		return r.Level.Data.Id
	}
	return r.Level.Id
}

func (r *Run) IsLevel() bool {
	return r.LevelId() != ""
}

func (r *Run) HasVideo() bool {
	return r.Videos != nil
}

// SubcategoryValues keeps the run's variable values that select a sub-leaderboard.
// It needs the game to be embedded; without it no value is considered a subcategory.
func (r *Run) SubcategoryValues() map[string]string {
	values := make(map[string]string)
	if r.Game.Data == nil {
		return values
	}
	subcategories := r.Game.Data.SubcategoryIds()
	for id, value := range r.Values {
		if subcategories[id] {
			values[id] = value
		}
	}
	return values
}

type LeaderboardEntry struct {
	Place int `json:"place"`
	Run   Run `json:"run"`
}

type Player struct {
	Rel   string `json:"rel"`
	Id    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Names *Names `json:"names,omitempty"`
	Role  string `json:"role,omitempty"`
}

type Leaderboard struct {
	Weblink  string             `json:"weblink"`
	Game     string             `json:"game"`
	Category string             `json:"category"`
	Level    *string            `json:"level,omitempty"`
	Runs     []LeaderboardEntry `json:"runs"`
	Players  DataList[Player]   `json:"players"`
}

// BannedPlayerIds collects the ids of the embedded players flagged as banned.
func (l *Leaderboard) BannedPlayerIds() map[string]bool {
	banned := make(map[string]bool)
	for _, player := range l.Players.Data {
		if player.Role == RoleBanned {
			banned[player.Id] = true
		}
	}
	return banned
}

type LeaderboardResponse struct {
	Data Leaderboard `json:"data"`
}

const RoleBanned = "banned"

type Country struct {
	Code  string `json:"code"`
	Names Names  `json:"names"`
}

type Location struct {
	Country *Country `json:"country,omitempty"`
}

type User struct {
	Id       string    `json:"id"`
	Names    Names     `json:"names"`
	Weblink  string    `json:"weblink"`
	Role     string    `json:"role"`
	Location *Location `json:"location,omitempty"`
}

// DisplayName is the international name, followed by the japanese one when there is one.
func (u *User) DisplayName() string {
	name := u.Names.International
	if u.Names.Japanese != nil && *u.Names.Japanese != "" {
		name += " (" + *u.Names.Japanese + ")"
	}
	return name
}

func (u *User) CountryCode() string {
	if u.Location == nil || u.Location.Country == nil {
		return ""
	}
	return u.Location.Country.Code
}

func (u *User) IsBanned() bool {
	return u.Role == RoleBanned
}

type UserResponse struct {
	Data User `json:"data"`
}
