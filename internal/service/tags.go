package service

import (
	"fmt"
	"strconv"

	"github.com/splitsmart/splitsmart-go/internal/querycache"
)

// The invalidation graph lives here: these are the only tags queries provide
// and mutations declare.

const (
	tagGroups        = "Groups"
	tagGroupDetails  = "GroupDetails"
	tagGroupBalances = "GroupBalances"
	tagGroupExpenses = "GroupExpenses"
)

func groupsTag() querycache.Tag {
	return querycache.Tag{Type: tagGroups}
}

func groupDetailsTag(groupID int64) querycache.Tag {
	return querycache.Tag{Type: tagGroupDetails, ID: strconv.FormatInt(groupID, 10)}
}

func groupBalancesTag(groupID int64) querycache.Tag {
	return querycache.Tag{Type: tagGroupBalances, ID: strconv.FormatInt(groupID, 10)}
}

func groupExpensesTag(groupID int64) querycache.Tag {
	return querycache.Tag{Type: tagGroupExpenses, ID: strconv.FormatInt(groupID, 10)}
}

// Cache keys mirror the endpoints they are fetched from.

const keyGroups querycache.Key = "groups"

func keyGroupDetails(groupID int64) querycache.Key {
	return querycache.Key(fmt.Sprintf("groups/%d", groupID))
}

func keyGroupBalances(groupID int64) querycache.Key {
	return querycache.Key(fmt.Sprintf("groups/%d/balances", groupID))
}

func keyGroupExpenses(groupID int64) querycache.Key {
	return querycache.Key(fmt.Sprintf("groups/%d/expenses", groupID))
}
