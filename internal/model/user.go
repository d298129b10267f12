// Package model holds the record types served by the bundled binaries.
package model

import (
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/mapper"
)

// User is a hero profile with a numeric-looking id, a display name and a
// signature line ("sal").
type User struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
	Sal      string `json:"sal"`
}

// UserSchema maps User to documents with the fields id, userName and sal.
// id is numeric for sorting purposes but kept as text so it round-trips
// exactly.
var UserSchema = mapper.MustSchema(
	mapper.FieldSpec[User]{
		Name: "id",
		Kind: mapper.KindNumeric,
		Get:  func(u *User) string { return u.ID },
		Set:  func(u *User, v string) error { u.ID = v; return nil },
	},
	mapper.Text("userName",
		func(u *User) string { return u.UserName },
		func(u *User, v string) { u.UserName = v }),
	mapper.Text("sal",
		func(u *User) string { return u.Sal },
		func(u *User, v string) { u.Sal = v }),
)

// SampleUsers is the demo data set.
func SampleUsers() []User {
	return []User{
		{"1", "鲁班七号", "不得不承认，有时候肌肉比头脑管用"},
		{"2", "成吉思汗", "雄鹰不畏暴风吹 狼群不为长夜畏惧"},
		{"3", "公孙离", "一舞剑气动四方"},
		{"4", "狄仁杰", "真相只有一个。"},
		{"5", "关羽", "把眼光，从二爷的绿帽子上移开"},
		{"6", "钟无艳", "俗说说得好，有钱男子汉，无钱汉子难"},
		{"7", "杨戬", "刀锋所划之地 便是疆土"},
		{"8", "花木兰", "谁说女子不如男"},
		{"9", "王昭君", "美貌是种罪孽，暴雪也无法掩埋。"},
		{"10", "甄姬", "果然，先爱上的那个人，是输家"},
		{"11", "貂蝉", "这么直白的盯着妾身，好羞涩哦"},
		{"12", "上官婉儿", "笔落兴亡定三端之妙，墨写清白尽六艺之奥"},
		{"13", "孙膑", "失去双脚，得到穿越时间的流量，这就是等价交换。"},
		{"14", "牛魔", "牛气冲天，纯爷们"},
		{"15", "大乔", "潮水中，沉默着被遗忘的名字，他们隶属于自作多情的泡沫！"},
		{"16", "姜子牙", "不刷新世界观怎么可能成长"},
		{"17", "白起", "最犀利的剑只为最强大的手所挥动"},
		{"18", "东皇太一", "舍弃怜悯，会让你蜕变成冷血的蜈蚣，丑陋而又强大。"},
		{"19", "项羽", "天不容我，我必逆天"},
		{"20", "庄周", "死亡，美妙的长眠，值得高歌一曲，啦～～～"},
	}
}
