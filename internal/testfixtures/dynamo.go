package testfixtures

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const maxBatchWrite = 25

type tableKey struct {
	pk string
	sk string
}

// DynamoTable is an in-memory stand-in for one DynamoDB table keyed on PK
// and SK. It understands the subset of expressions used by this module:
// "PK = :v" key conditions, AND-joined comparison filters, SET update
// expressions, and attribute_exists / attribute_not_exists conditions.
type DynamoTable struct {
	// PageSize caps Query and Scan pages when the request carries no Limit.
	PageSize int
	// UnprocessedPerBatch leaves the last N requests of every BatchWriteItem
	// call unapplied and returns them as UnprocessedItems.
	UnprocessedPerBatch int
	// Fail is consulted before every call with the operation name and its
	// 1-based call count. A non-nil result is returned to the caller.
	Fail func(op string, call int) error

	mu         sync.Mutex
	items      map[tableKey]map[string]types.AttributeValue
	calls      map[string]int
	batchSizes []int
}

// NewDynamoTable returns an empty table.
func NewDynamoTable() *DynamoTable {
	return &DynamoTable{
		items: make(map[tableKey]map[string]types.AttributeValue),
		calls: make(map[string]int),
	}
}

// Seed stores items verbatim.
func (t *DynamoTable) Seed(items ...map[string]types.AttributeValue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range items {
		t.items[keyOf(item)] = maps.Clone(item)
	}
}

// Item returns a copy of the stored item.
func (t *DynamoTable) Item(pk, sk string) (map[string]types.AttributeValue, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[tableKey{pk, sk}]
	return maps.Clone(item), ok
}

// Len returns the number of stored items.
func (t *DynamoTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// PartitionLen returns the number of stored items sharing pk.
func (t *DynamoTable) PartitionLen(pk string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.items {
		if k.pk == pk {
			n++
		}
	}
	return n
}

// Calls returns how often op was invoked.
func (t *DynamoTable) Calls(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op]
}

// BatchSizes returns the request count of every BatchWriteItem call.
func (t *DynamoTable) BatchSizes() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.batchSizes)
}

func (t *DynamoTable) before(op string) error {
	t.calls[op]++
	if t.Fail != nil {
		return t.Fail(op, t.calls[op])
	}
	return nil
}

func (t *DynamoTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.before("GetItem"); err != nil {
		return nil, err
	}
	item, ok := t.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: project(item, aws.ToString(in.ProjectionExpression), in.ExpressionAttributeNames)}, nil
}

func (t *DynamoTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.before("PutItem"); err != nil {
		return nil, err
	}
	key := keyOf(in.Item)
	ok, err := evalCondition(t.items[key], aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	t.items[key] = maps.Clone(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (t *DynamoTable) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.before("DeleteItem"); err != nil {
		return nil, err
	}
	delete(t.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

var keyConditionRE = regexp.MustCompile(`^\s*(\S+)\s*=\s*(:\w+)\s*$`)

func (t *DynamoTable) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.before("Query"); err != nil {
		return nil, err
	}
	m := keyConditionRE.FindStringSubmatch(aws.ToString(in.KeyConditionExpression))
	if m == nil {
		return nil, validationError("unsupported key condition %q", aws.ToString(in.KeyConditionExpression))
	}
	if name := resolveName(m[1], in.ExpressionAttributeNames); name != "PK" {
		return nil, validationError("key condition must target PK, got %q", name)
	}
	pk, ok := in.ExpressionAttributeValues[m[2]].(*types.AttributeValueMemberS)
	if !ok {
		return nil, validationError("missing value for %s", m[2])
	}

	var keys []tableKey
	for k := range t.items {
		if k.pk == pk.Value {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareKeys)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		slices.Reverse(keys)
	}
	page, last := t.page(keys, in.ExclusiveStartKey, in.Limit)

	out := &dynamodb.QueryOutput{LastEvaluatedKey: last}
	for _, k := range page {
		out.Items = append(out.Items, project(t.items[k], aws.ToString(in.ProjectionExpression), in.ExpressionAttributeNames))
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = out.Count
	return out, nil
}

func (t *DynamoTable) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.before("Scan"); err != nil {
		return nil, err
	}
	keys := slices.Collect(maps.Keys(t.items))
	slices.SortFunc(keys, compareKeys)
	page, last := t.page(keys, in.ExclusiveStartKey, in.Limit)

	out := &dynamodb.ScanOutput{LastEvaluatedKey: last, ScannedCount: int32(len(page))}
	for _, k := range page {
		item := t.items[k]
		ok, err := evalCondition(item, aws.ToString(in.FilterExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Items = append(out.Items, project(item, aws.ToString(in.ProjectionExpression), in.ExpressionAttributeNames))
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// page applies ExclusiveStartKey and Limit to an ordered key list. The
// returned LastEvaluatedKey is nil when nothing follows the page.
func (t *DynamoTable) page(keys []tableKey, start map[string]types.AttributeValue, limit *int32) ([]tableKey, map[string]types.AttributeValue) {
	if start != nil {
		sk := keyOf(start)
		idx := slices.Index(keys, sk)
		if idx >= 0 {
			keys = keys[idx+1:]
		} else {
			i, _ := slices.BinarySearchFunc(keys, sk, compareKeys)
			keys = keys[i:]
		}
	}
	n := len(keys)
	if limit != nil && *limit > 0 {
		n = min(n, int(*limit))
	} else if t.PageSize > 0 {
		n = min(n, t.PageSize)
	}
	if n == len(keys) {
		return keys, nil
	}
	last := keys[n-1]
	return keys[:n], map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: last.pk},
		"SK": &types.AttributeValueMemberS{Value: last.sk},
	}
}

func (t *DynamoTable) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.before("BatchWriteItem"); err != nil {
		return nil, err
	}
	total := 0
	for _, reqs := range in.RequestItems {
		total += len(reqs)
	}
	if total == 0 || total > maxBatchWrite {
		return nil, validationError("batch write must contain 1..%d requests, got %d", maxBatchWrite, total)
	}
	t.batchSizes = append(t.batchSizes, total)

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		applied := len(reqs) - min(t.UnprocessedPerBatch, len(reqs))
		for _, req := range reqs[:applied] {
			switch {
			case req.PutRequest != nil:
				t.items[keyOf(req.PutRequest.Item)] = maps.Clone(req.PutRequest.Item)
			case req.DeleteRequest != nil:
				delete(t.items, keyOf(req.DeleteRequest.Key))
			}
		}
		if applied < len(reqs) {
			out.UnprocessedItems[table] = slices.Clone(reqs[applied:])
		}
	}
	return out, nil
}

func (t *DynamoTable) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.before("TransactWriteItems"); err != nil {
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	cancelled := false
	for i, ti := range in.TransactItems {
		var (
			key    tableKey
			cond   *string
			names  map[string]string
			values map[string]types.AttributeValue
		)
		switch {
		case ti.Put != nil:
			key, cond, names, values = keyOf(ti.Put.Item), ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues
		case ti.Update != nil:
			key, cond, names, values = keyOf(ti.Update.Key), ti.Update.ConditionExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues
		case ti.Delete != nil:
			key, cond, names, values = keyOf(ti.Delete.Key), ti.Delete.ConditionExpression, ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues
		case ti.ConditionCheck != nil:
			key, cond, names, values = keyOf(ti.ConditionCheck.Key), ti.ConditionCheck.ConditionExpression, ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues
		}
		ok, err := evalCondition(t.items[key], aws.ToString(cond), names, values)
		if err != nil {
			return nil, err
		}
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if !ok {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed"), Message: aws.String("The conditional request failed")}
			cancelled = true
		}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			t.items[keyOf(ti.Put.Item)] = maps.Clone(ti.Put.Item)
		case ti.Update != nil:
			if err := t.applyUpdate(ti.Update); err != nil {
				return nil, err
			}
		case ti.Delete != nil:
			delete(t.items, keyOf(ti.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (t *DynamoTable) applyUpdate(u *types.Update) error {
	expr, ok := strings.CutPrefix(strings.TrimSpace(aws.ToString(u.UpdateExpression)), "SET ")
	if !ok {
		return validationError("unsupported update expression %q", aws.ToString(u.UpdateExpression))
	}
	key := keyOf(u.Key)
	item := maps.Clone(t.items[key])
	if item == nil {
		item = maps.Clone(u.Key)
	}
	for _, assignment := range strings.Split(expr, ",") {
		lhs, rhs, ok := strings.Cut(assignment, "=")
		if !ok {
			return validationError("malformed assignment %q", assignment)
		}
		v, ok := u.ExpressionAttributeValues[strings.TrimSpace(rhs)]
		if !ok {
			return validationError("missing value for %s", strings.TrimSpace(rhs))
		}
		item[resolveName(strings.TrimSpace(lhs), u.ExpressionAttributeNames)] = v
	}
	t.items[key] = item
	return nil
}

func (t *DynamoTable) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.before("DescribeTable"); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
		ItemCount:   aws.Int64(int64(len(t.items))),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
	}}, nil
}

func keyOf(item map[string]types.AttributeValue) tableKey {
	return tableKey{pk: stringValue(item["PK"]), sk: stringValue(item["SK"])}
}

func compareKeys(a, b tableKey) int {
	if c := strings.Compare(a.pk, b.pk); c != 0 {
		return c
	}
	return strings.Compare(a.sk, b.sk)
}

func stringValue(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if resolved, ok := names[name]; ok {
			return resolved
		}
	}
	return name
}

func project(item map[string]types.AttributeValue, projection string, names map[string]string) map[string]types.AttributeValue {
	if strings.TrimSpace(projection) == "" {
		return maps.Clone(item)
	}
	out := make(map[string]types.AttributeValue)
	for _, attr := range strings.Split(projection, ",") {
		name := resolveName(strings.TrimSpace(attr), names)
		if v, ok := item[name]; ok {
			out[name] = v
		}
	}
	return out
}

var (
	existsRE     = regexp.MustCompile(`^attribute_(not_)?exists\(\s*(\S+?)\s*\)$`)
	comparisonRE = regexp.MustCompile(`^(\S+)\s*(<=|>=|<>|=|<|>)\s*(:\w+)$`)
)

// evalCondition evaluates an AND-joined condition against item, which is nil
// when no item is stored. An empty expression is always true.
func evalCondition(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		if m := existsRE.FindStringSubmatch(clause); m != nil {
			_, present := item[resolveName(m[2], names)]
			if present == (m[1] == "not_") {
				return false, nil
			}
			continue
		}
		m := comparisonRE.FindStringSubmatch(clause)
		if m == nil {
			return false, validationError("unsupported condition %q", clause)
		}
		want, ok := values[m[3]]
		if !ok {
			return false, validationError("missing value for %s", m[3])
		}
		got, ok := item[resolveName(m[1], names)]
		if !ok {
			return false, nil
		}
		c, comparable := compareValues(got, want)
		if !comparable {
			return false, nil
		}
		var match bool
		switch m[2] {
		case "=":
			match = c == 0
		case "<>":
			match = c != 0
		case "<":
			match = c < 0
		case "<=":
			match = c <= 0
		case ">":
			match = c > 0
		case ">=":
			match = c >= 0
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}

func compareValues(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, errX := strconv.ParseFloat(av.Value, 64)
		y, errY := strconv.ParseFloat(bv.Value, 64)
		if errX != nil || errY != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return 0, false
		}
		if av.Value == bv.Value {
			return 0, true
		}
		return 1, true
	}
	return 0, false
}

func validationError(format string, args ...any) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: fmt.Sprintf(format, args...),
		Fault:   smithy.FaultClient,
	}
}
