package utils

import (
	"github.com/emirpasic/gods/sets"
	"github.com/emirpasic/gods/sets/hashset"
)

func List2set[T any](list []T) sets.Set {
	set := hashset.New()
	for _, value := range list {
		set.Add(value)
	}
	return set
}

// Set2StringList 集合转为字符串列表，顺序不固定
func Set2StringList(set sets.Set) []string {
	list := make([]string, 0, set.Size())
	for _, value := range set.Values() {
		if s, ok := value.(string); ok {
			list = append(list, s)
		}
	}
	return list
}
