package descriptor

// FindAnnotation 返回注解列表中第一个类型为 T 的注解。
func FindAnnotation[T any](annotations []any) (T, bool) {
	for _, a := range annotations {
		if v, ok := a.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// ElementAnnotation 查找 d 第 i 个元素上类型为 T 的注解。
func ElementAnnotation[T any](d Descriptor, i int) (T, bool) {
	return FindAnnotation[T](d.ElementAnnotations(i))
}

// ClassAnnotation 查找 d 自身类型为 T 的注解。
func ClassAnnotation[T any](d Descriptor) (T, bool) {
	return FindAnnotation[T](d.Annotations())
}
